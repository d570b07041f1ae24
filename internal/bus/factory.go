package bus

import (
	"fmt"
	"strings"

	"github.com/lusochat/smart-search/internal/config"
	"github.com/lusochat/smart-search/internal/pkg/errors"
	"github.com/lusochat/smart-search/internal/pkg/logger"
)

// NewBus creates the Bus described by cfg. When an event log path is set the
// bus is wrapped in a LoggedBus.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var inner Bus

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		group := cfg.KafkaGroup
		if group == "" {
			group = "smart-search"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
			ClientID:      "smart-search-bus",
		}, log)
		if err != nil {
			return nil, err
		}
		inner = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog == "" {
		return inner, nil
	}

	eventLogger, err := NewEventLogger(cfg.EventLog, true)
	if err != nil {
		inner.Close()
		return nil, errors.BusError("failed to open event log", err)
	}
	return NewLoggedBus(inner, eventLogger, log), nil
}
