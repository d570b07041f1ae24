package decision

import (
	"fmt"
	"strings"
)

// Match strategies for keyword lists.
const (
	// MatchWordOrSubstring counts a keyword when it appears as a whole word
	// or anywhere inside the text.
	MatchWordOrSubstring = "word_or_substring"

	// MatchWord counts a keyword only on whole-word boundaries. Keywords
	// whose pattern cannot be compiled still fall back to substring.
	MatchWord = "word"
)

// Config holds the tunable parameters of the engine. Start from
// DefaultConfig and decode over it so omitted fields keep their defaults.
type Config struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// Gating
	AllowRAGFirst             bool `json:"allow_rag_first" yaml:"allow_rag_first"`
	MinCharsForSearch         int  `json:"min_chars_for_search" yaml:"min_chars_for_search"`
	ForceIfUserRequestsSearch bool `json:"force_if_user_requests_search" yaml:"force_if_user_requests_search"`
	EnforceDomainIntent       bool `json:"enforce_domain_intent" yaml:"enforce_domain_intent"`
	PenalizeAnaphora          bool `json:"penalize_anaphora" yaml:"penalize_anaphora"`
	CooldownTurns             int  `json:"cooldown_turns" yaml:"cooldown_turns"`

	// Scoring
	Aggressiveness     int    `json:"aggressiveness" yaml:"aggressiveness"`
	Threshold          int    `json:"threshold" yaml:"threshold"`
	SoftenSkipKeywords bool   `json:"soften_skip_keywords" yaml:"soften_skip_keywords"`
	MatchStrategy      string `json:"match_strategy" yaml:"match_strategy"`

	// Result sizing
	ResultCountSimple   int  `json:"result_count_simple" yaml:"result_count_simple"`
	ResultCountComplex  int  `json:"result_count_complex" yaml:"result_count_complex"`
	ResultCountDefault  int  `json:"result_count_default" yaml:"result_count_default"`
	ResultCountOverride *int `json:"result_count_override,omitempty" yaml:"result_count_override,omitempty"`

	Debug bool `json:"debug" yaml:"debug"`

	// Keyword lists
	ForceKeywords           []string `json:"force_keywords" yaml:"force_keywords"`
	SkipKeywords            []string `json:"skip_keywords" yaml:"skip_keywords"`
	ChitchatKeywords        []string `json:"chitchat_keywords" yaml:"chitchat_keywords"`
	ResourceKeywords        []string `json:"resource_keywords" yaml:"resource_keywords"`
	DomainKeywords          []string `json:"domain_keywords" yaml:"domain_keywords"`
	SearchTriggerWords      []string `json:"search_trigger_words" yaml:"search_trigger_words"`
	QuestionCues            []string `json:"question_cues" yaml:"question_cues"`
	AnaphoraPhrases         []string `json:"anaphora_phrases" yaml:"anaphora_phrases"`
	LinkMarkers             []string `json:"link_markers" yaml:"link_markers"`
	TimeSensitiveKeywords   []string `json:"time_sensitive_keywords" yaml:"time_sensitive_keywords"`
	SimpleCategoryKeywords  []string `json:"simple_category_keywords" yaml:"simple_category_keywords"`
	ComplexCategoryKeywords []string `json:"complex_category_keywords" yaml:"complex_category_keywords"`
}

// DefaultConfig returns the defaults of the Lusófona deployment.
func DefaultConfig() Config {
	return Config{
		Mode: ModeAuto,

		AllowRAGFirst:             true,
		MinCharsForSearch:         12,
		ForceIfUserRequestsSearch: true,
		EnforceDomainIntent:       true,
		PenalizeAnaphora:          true,
		CooldownTurns:             2,

		Aggressiveness:     0,
		Threshold:          1,
		SoftenSkipKeywords: true,
		MatchStrategy:      MatchWordOrSubstring,

		ResultCountSimple:  2,
		ResultCountComplex: 5,
		ResultCountDefault: 3,

		ForceKeywords: []string{
			"agora", "hoje", "atualizado", "atualização", "prazo", "prazos",
			"deadline", "calendário", "horário", "propina", "propinas",
			"candidatura", "candidaturas", "inscrição", "inscrições",
			"regulamento", "regulamentos", "news", "novidade", "novidades",
			"ranking", "publicado", "edital", "bolsa", "bolsas", "apoio",
			"apoios", "resultado", "resultados", "202", "2024", "2025",
			"site", "website", "página", "páginas",
		},
		SkipKeywords: []string{
			"contacto", "contactos", "contact", "contacts", "email", "e-mail",
			"telefone", "telemóvel", "whatsapp", "morada", "endereço",
			"address", "extensão", "ramal", "número", "numero", "location",
			"localização", "onde fica",
		},
		ChitchatKeywords: []string{
			"olá", "ola", "obrigado", "obrigada", "ok", "sim", "não", "nao",
			"bom dia", "boa tarde", "boa noite", "valeu",
		},
		ResourceKeywords: []string{
			"candidatura", "candidaturas", "admissão", "admissao", "propina",
			"propinas", "prazo", "prazos", "calendário", "horário",
			"regulamento", "regulamentos", "bolsa", "bolsas", "serviços",
			"servicos", "curso", "cursos", "plano de estudos", "ects",
			"estatuto", "edital",
		},
		DomainKeywords: []string{
			"lusófona", "lusofona", "universidade lusófona", "ulusofona",
			"ulusofona.pt",
		},
		SearchTriggerWords: []string{
			"pesquisa", "pesquisar", "procura", "procurar", "web", "google",
			"fonte", "fontes", "link", "links", "sítio", "site", "página",
		},
		QuestionCues: []string{
			"?", "como", "quando", "onde", "qual", "quais", "quem", "o que",
			"como faço", "como posso", "link", "site", "página",
		},
		AnaphoraPhrases: []string{
			"e isto", "e isso", "e aquilo", "e quando", "e onde", "e como",
			"e mais", "e então", "e agora", "e depois",
		},
		LinkMarkers: []string{"http://", "https://", "Fonte", "Fontes"},
		TimeSensitiveKeywords: []string{
			"candidatura", "candidaturas", "prazo", "prazos", "calendário",
			"horário", "propina", "propinas", "regulamento",
		},
		SimpleCategoryKeywords: []string{
			"prazo", "prazos", "propina", "propinas", "calendário", "horário",
			"regulamento", "taxa", "propinas 2025", "propinas 2024",
		},
		ComplexCategoryKeywords: []string{
			"condições de entrada", "condicoes de entrada", "requisitos",
			"admissão", "admissao", "critérios", "criterios",
			"plano de estudos", "currículo", "curriculo", "ects",
		},
	}
}

// CountFor returns the configured result count for a category, honouring
// the override when one is set.
func (c Config) CountFor(cat Category) int {
	if c.ResultCountOverride != nil {
		return *c.ResultCountOverride
	}
	switch cat {
	case CategorySimpleRecent, CategorySimple:
		return c.ResultCountSimple
	case CategoryComplex:
		return c.ResultCountComplex
	default:
		return c.ResultCountDefault
	}
}

// Validate reports configuration values that make no sense. The engine
// tolerates an invalid config; callers that persist configs should not.
func (c Config) Validate() error {
	var errs []string

	switch Mode(strings.ToLower(string(c.Mode))) {
	case ModeOff, ModeAuto, ModeAlwaysOn, "":
	default:
		errs = append(errs, fmt.Sprintf("invalid mode: %s (must be off, auto, or always_on)", c.Mode))
	}

	switch c.MatchStrategy {
	case MatchWordOrSubstring, MatchWord, "":
	default:
		errs = append(errs, fmt.Sprintf("invalid match_strategy: %s (must be %s or %s)",
			c.MatchStrategy, MatchWordOrSubstring, MatchWord))
	}

	if c.MinCharsForSearch < 0 {
		errs = append(errs, "min_chars_for_search must not be negative")
	}
	if c.CooldownTurns < 0 {
		errs = append(errs, "cooldown_turns must not be negative")
	}
	if c.ResultCountSimple < 1 || c.ResultCountComplex < 1 || c.ResultCountDefault < 1 {
		errs = append(errs, "result counts must be positive")
	}
	if c.ResultCountOverride != nil && *c.ResultCountOverride < 1 {
		errs = append(errs, "result_count_override must be positive when set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("decision config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
