package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/leeaandrob/volwatch/internal/models"
)

// Validation reasons.
const (
	ReasonEmptyText              = "empty_text"
	ReasonTooLong                = "too_long"
	ReasonTooManySentences       = "too_many_sentences"
	ReasonForbiddenWordPrefix    = "forbidden_word:"
	ReasonMissingEventName       = "missing_event_name_for_anchor_high"
	ReasonMissingClusterAnchor   = "missing_cluster_anchor_name"
	ReasonInvalidDuringFirstLine = "invalid_during_event_first_line"

	ReasonEmptySecondLine            = "empty_second_line"
	ReasonSecondLineTooManySentences = "second_line_too_many_sentences"
)

// DefaultForbiddenWords are terms implying directive advice or alarm.
var DefaultForbiddenWords = []string{
	"recommend",
	"be careful",
	"watch out",
	"critical",
	"extreme",
	"panic",
	"regime",
	"level",
	"control",
}

// Policy is the hard rule set every delivered message must satisfy.
type Policy struct {
	MaxLength      int
	MaxSentences   int
	ForbiddenWords []string
}

// DefaultPolicy returns the deployed policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxLength:      220,
		MaxSentences:   3,
		ForbiddenWords: DefaultForbiddenWords,
	}
}

// Validation is the outcome of checking a text against the policy.
type Validation struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func fail(reason string) Validation {
	return Validation{Reason: reason}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// CountSentences counts non-empty segments between sentence terminators.
func CountSentences(text string) int {
	n := 0
	for _, seg := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(seg) != "" {
			n++
		}
	}
	return n
}

// Validate checks a full message.
func (pol Policy) Validate(text string, p models.VolatilityPayload) Validation {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fail(ReasonEmptyText)
	}
	if utf8.RuneCountInString(trimmed) > pol.MaxLength {
		return fail(ReasonTooLong)
	}
	if CountSentences(trimmed) > pol.MaxSentences {
		return fail(ReasonTooManySentences)
	}
	lower := strings.ToLower(trimmed)
	if w := pol.forbiddenWord(lower); w != "" {
		return fail(ReasonForbiddenWordPrefix + w)
	}
	if p.ImpactType == models.ImpactTypeAnchorHigh {
		name := strings.ToLower(strings.TrimSpace(p.EventName))
		if name != "" && !strings.Contains(lower, name) {
			return fail(ReasonMissingEventName)
		}
	}
	if p.ClusterHasAnchor && p.Phase != models.PhaseDuring && !mentionsAny(lower, p.ClusterAnchorNames) {
		return fail(ReasonMissingClusterAnchor)
	}
	if p.State == models.StateRed && p.Phase == models.PhaseDuring &&
		!strings.HasPrefix(trimmed, DuringFirstLine(p)) {
		return fail(ReasonInvalidDuringFirstLine)
	}
	return Validation{OK: true}
}

// ValidateSecondLine checks the generated second line of a during-event message.
func (pol Policy) ValidateSecondLine(line string) Validation {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return fail(ReasonEmptySecondLine)
	}
	if CountSentences(trimmed) > 1 {
		return fail(ReasonSecondLineTooManySentences)
	}
	if w := pol.forbiddenWord(strings.ToLower(trimmed)); w != "" {
		return fail(ReasonForbiddenWordPrefix + w)
	}
	return Validation{OK: true}
}

// Validate checks text against the default policy.
func Validate(text string, p models.VolatilityPayload) Validation {
	return DefaultPolicy().Validate(text, p)
}

func (pol Policy) forbiddenWord(lower string) string {
	for _, w := range pol.ForbiddenWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}

func mentionsAny(lower string, names []string) bool {
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.Contains(lower, name) {
			return true
		}
	}
	return false
}
