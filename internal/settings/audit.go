package settings

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"
)

// AuditEntry represents a single settings change audit log entry.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Version   int           `json:"version"`
	ChangedBy string        `json:"changed_by"`
	Changes   []FieldChange `json:"changes"`
	RequestID string        `json:"request_id,omitempty"`
}

// FieldChange represents a single field modification.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AuditLogger writes settings changes to a JSON lines log file.
type AuditLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	enabled bool
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	LogPath string
	Enabled bool
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) (*AuditLogger, error) {
	if !cfg.Enabled {
		return &AuditLogger{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &AuditLogger{
		logPath: cfg.LogPath,
		file:    file,
		enabled: true,
	}, nil
}

// Log writes an audit entry to the log file.
func (a *AuditLogger) Log(entry AuditEntry) error {
	if !a.enabled {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return a.file.Sync()
}

// GetEntries returns the last N audit entries, newest first. A limit of 0
// returns all entries.
func (a *AuditLogger) GetEntries(limit int) ([]AuditEntry, error) {
	if !a.enabled {
		return []AuditEntry{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []AuditEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// Skip malformed lines
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	for i := 0; i < len(entries)/2; i++ {
		j := len(entries) - i - 1
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	if a == nil || !a.enabled || a.file == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.file.Close()
}

// Diff compares two valve sets and returns the changed fields, named by
// their YAML keys. Rules fields are prefixed with "rules.".
func Diff(old, new Valves) []FieldChange {
	changes := diffStruct("rules.", reflect.ValueOf(old.Rules), reflect.ValueOf(new.Rules))
	changes = append(changes, diffStruct("", reflect.ValueOf(old), reflect.ValueOf(new))...)
	return changes
}

// skippedFields are metadata or nested structs handled separately.
var skippedFields = map[string]bool{
	"Rules":     true,
	"UpdatedAt": true,
	"Version":   true,
	"ChangedBy": true,
}

func diffStruct(prefix string, oldVal, newVal reflect.Value) []FieldChange {
	var changes []FieldChange
	typ := oldVal.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if skippedFields[field.Name] {
			continue
		}

		o := oldVal.Field(i).Interface()
		n := newVal.Field(i).Interface()
		if reflect.DeepEqual(o, n) {
			continue
		}

		changes = append(changes, FieldChange{
			Field:    prefix + yamlName(field),
			OldValue: o,
			NewValue: n,
		})
	}

	return changes
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}
