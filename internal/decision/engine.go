package decision

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// anaphoricMaxRunes is the length below which any follow-up is treated as
// anaphoric.
const anaphoricMaxRunes = 10

// Engine evaluates transcripts against one configuration. It is immutable
// after New and safe for concurrent use.
type Engine struct {
	cfg Config

	force    keywordSet
	skip     keywordSet
	chitchat keywordSet
	resource keywordSet
	domain   keywordSet
	triggers keywordSet
	cues     keywordSet
	anaphora keywordSet
	timely   keywordSet
	simple   keywordSet
	complex  keywordSet
}

// New compiles the keyword lists of cfg.
func New(cfg Config) *Engine {
	strategy := cfg.MatchStrategy
	return &Engine{
		cfg:      cfg,
		force:    newKeywordSet(cfg.ForceKeywords, strategy),
		skip:     newKeywordSet(cfg.SkipKeywords, strategy),
		chitchat: newKeywordSet(cfg.ChitchatKeywords, strategy),
		resource: newKeywordSet(cfg.ResourceKeywords, strategy),
		domain:   newKeywordSet(cfg.DomainKeywords, strategy),
		triggers: newKeywordSet(cfg.SearchTriggerWords, strategy),
		cues:     newKeywordSet(cfg.QuestionCues, strategy),
		anaphora: newKeywordSet(cfg.AnaphoraPhrases, strategy),
		timely:   newKeywordSet(cfg.TimeSensitiveKeywords, strategy),
		simple:   newKeywordSet(cfg.SimpleCategoryKeywords, strategy),
		complex:  newKeywordSet(cfg.ComplexCategoryKeywords, strategy),
	}
}

// Decide is a convenience for New(cfg).Decide(t).
func Decide(t Transcript, cfg Config) Decision {
	return New(cfg).Decide(t)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Decide returns the search decision for the latest user turn of t.
func (e *Engine) Decide(t Transcript) Decision {
	switch ParseMode(string(e.cfg.Mode)) {
	case ModeOff:
		return Decision{
			Mode:     ModeOff,
			Reason:   ReasonModeOff,
			Category: CategoryDefault,
		}
	case ModeAlwaysOn:
		return Decision{
			Enabled:     true,
			Mode:        ModeAlwaysOn,
			Reason:      ReasonModeAlwaysOn,
			Category:    CategoryDefault,
			ResultCount: e.cfg.CountFor(CategoryDefault),
		}
	}

	text := t.LastText(RoleUser)
	d := e.decideAuto(text, t)
	d.Mode = ModeAuto
	d.Category = e.Classify(text)
	if d.Enabled {
		d.ResultCount = e.cfg.CountFor(d.Category)
	}
	return d
}

// decideAuto runs the ordered auto-mode rules. The first short-circuit wins.
func (e *Engine) decideAuto(text string, t Transcript) Decision {
	if text == "" {
		return Decision{Reason: ReasonEmptyText}
	}

	lowered := strings.ToLower(text)

	if e.cfg.ForceIfUserRequestsSearch && e.triggers.any(lowered) {
		return Decision{Enabled: true, Reason: ReasonUserRequestedSearch}
	}

	if e.cfg.AllowRAGFirst && utf8.RuneCountInString(strings.TrimSpace(text)) < e.cfg.MinCharsForSearch {
		return Decision{Reason: ReasonTooShort}
	}

	institutional := e.hasInstitutionalIntent(lowered)

	if e.chitchat.any(lowered) && !institutional {
		return Decision{Reason: ReasonChitchatSkip}
	}

	if e.cfg.EnforceDomainIntent && !institutional {
		return Decision{Reason: ReasonNoDomainIntent}
	}

	if e.cfg.CooldownTurns > 0 && e.cfg.PenalizeAnaphora &&
		e.recentAssistantHadLinks(t) && e.isAnaphoric(text) {
		return Decision{Reason: ReasonCooldownFollowup}
	}

	forceHits := e.force.count(lowered)
	skipHits := e.skip.count(lowered)

	score := forceHits
	score += e.cues.count(lowered)
	if hasFullYear(text) {
		score++
	}
	if hasLongNumber(text) {
		score++
	}
	if hasShortYear(text) && e.timely.any(lowered) {
		score++
	}
	if e.domain.any(lowered) {
		score++
	}

	if e.cfg.SoftenSkipKeywords {
		score -= skipHits
	} else if skipHits > 0 && forceHits == 0 {
		return Decision{
			Reason:    ReasonSkipKeywordsBlock,
			Score:     score,
			ForceHits: forceHits,
			SkipHits:  skipHits,
		}
	}

	// A previous answer without citations leaves a gap worth filling.
	if last := t.LastText(RoleAssistant); last != "" && !containsAnyExact(last, e.cfg.LinkMarkers) {
		score++
	}

	score += e.cfg.Aggressiveness

	reason := fmt.Sprintf("score=%d, force=%d, skip=%d, aggr=%d, thr=%d",
		score, forceHits, skipHits, e.cfg.Aggressiveness, e.cfg.Threshold)

	return Decision{
		Enabled:   score >= e.cfg.Threshold,
		Reason:    reason,
		Score:     score,
		ForceHits: forceHits,
		SkipHits:  skipHits,
	}
}

// Classify assigns the result-sizing category of a query.
func (e *Engine) Classify(text string) Category {
	lowered := strings.ToLower(text)
	isSimple := e.simple.any(lowered)
	isComplex := e.complex.any(lowered)
	hasYear := hasFullYear(lowered) || hasShortYear(lowered)

	switch {
	case isSimple && hasYear:
		return CategorySimpleRecent
	case isSimple && !isComplex:
		return CategorySimple
	case isComplex:
		return CategoryComplex
	default:
		return CategoryDefault
	}
}

func (e *Engine) hasInstitutionalIntent(lowered string) bool {
	return e.resource.any(lowered) || e.domain.any(lowered)
}

// recentAssistantHadLinks scans the last CooldownTurns assistant turns, most
// recent first, for a link or citation marker.
func (e *Engine) recentAssistantHadLinks(t Transcript) bool {
	seen := 0
	for i := len(t) - 1; i >= 0; i-- {
		if !t[i].Is(RoleAssistant) {
			continue
		}
		seen++
		if containsAnyExact(t[i].Text(), e.cfg.LinkMarkers) {
			return true
		}
		if seen >= e.cfg.CooldownTurns {
			break
		}
	}
	return false
}

func (e *Engine) isAnaphoric(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if utf8.RuneCountInString(t) < anaphoricMaxRunes {
		return true
	}
	return e.anaphora.any(t)
}
