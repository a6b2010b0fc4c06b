package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/models"
)

// Generation failure reasons not produced by the validator.
const (
	ReasonMissingCredentials = "missing_service_credentials"
	ReasonEmptyResponse      = "empty_response"
	ReasonInvalidSchema      = "invalid_response_schema"
	ReasonRequestFailed      = "service_request_failed"
)

// DefaultTimeout bounds each call to the generative service.
const DefaultTimeout = 8 * time.Second

// ErrMissingCredentials may be returned by a CandidateGenerator that has no API key.
var ErrMissingCredentials = errors.New("generative service credentials missing")

// CandidateGenerator produces one raw candidate. Turns alternate user and assistant
// messages, starting and ending with a user message.
type CandidateGenerator interface {
	GenerateCandidate(ctx context.Context, system string, turns []string) (string, error)
}

// Generator runs the validated generative path with one repair and a template fallback.
type Generator struct {
	llm     CandidateGenerator
	policy  Policy
	timeout time.Duration
}

// NewGenerator creates a generator. A nil llm always falls back to templates.
func NewGenerator(llm CandidateGenerator, policy Policy, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if policy.MaxLength <= 0 {
		policy.MaxLength = DefaultPolicy().MaxLength
	}
	if policy.MaxSentences <= 0 {
		policy.MaxSentences = DefaultPolicy().MaxSentences
	}
	return &Generator{llm: llm, policy: policy, timeout: timeout}
}

// Policy returns the validation policy in use.
func (g *Generator) Policy() Policy {
	return g.policy
}

// Generate produces the notification text. It never fails: any problem yields the template.
func (g *Generator) Generate(ctx context.Context, p models.VolatilityPayload) models.GenerationResult {
	if g.llm == nil {
		return g.fallback(p, 1, false, ReasonMissingCredentials)
	}
	if p.State == models.StateRed && p.Phase == models.PhaseDuring {
		return g.generateDuring(ctx, p)
	}
	return g.generateGeneral(ctx, p)
}

func (g *Generator) generateDuring(ctx context.Context, p models.VolatilityPayload) models.GenerationResult {
	raw, reason := g.call(ctx, g.duringSystemPrompt(), []string{duringUserContext(p)})
	if reason != "" {
		return g.fallback(p, 1, false, reason)
	}

	var resp secondLineResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.SecondLine == nil {
		return g.fallback(p, 1, false, ReasonInvalidSchema)
	}
	second := strings.TrimSpace(*resp.SecondLine)
	if v := g.policy.ValidateSecondLine(second); !v.OK {
		return g.fallback(p, 1, false, v.Reason)
	}

	text := DuringFirstLine(p) + "\n" + second
	if v := g.policy.Validate(text, p); !v.OK {
		return g.fallback(p, 1, false, v.Reason)
	}
	return models.GenerationResult{Text: text, Success: true, Attempts: 1}
}

func (g *Generator) generateGeneral(ctx context.Context, p models.VolatilityPayload) models.GenerationResult {
	system := g.generalSystemPrompt(p)
	user := userContext(p)

	raw, reason := g.call(ctx, system, []string{user})
	if reason != "" {
		return g.fallback(p, 1, false, reason)
	}
	msg, reason := parseMessage(raw)
	if reason != "" {
		return g.fallback(p, 1, false, reason)
	}
	v := g.policy.Validate(msg, p)
	if v.OK {
		return models.GenerationResult{Text: strings.TrimSpace(msg), Success: true, Attempts: 1}
	}

	log.Debug().Str("reason", v.Reason).Msg("Candidate rejected, requesting repair")

	raw, reason = g.call(ctx, system, []string{user, raw, repairInstruction(v.Reason)})
	if reason != "" {
		return g.fallback(p, 2, true, reason)
	}
	msg, reason = parseMessage(raw)
	if reason != "" {
		return g.fallback(p, 2, true, reason)
	}
	if v = g.policy.Validate(msg, p); !v.OK {
		return g.fallback(p, 2, true, v.Reason)
	}
	return models.GenerationResult{Text: strings.TrimSpace(msg), Success: true, Attempts: 2, Repaired: true}
}

// call runs one bounded request and maps failures to reason codes.
func (g *Generator) call(ctx context.Context, system string, turns []string) (string, string) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.llm.GenerateCandidate(callCtx, system, turns)
	if err != nil {
		return "", g.errorReason(callCtx, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", ReasonEmptyResponse
	}
	return raw, ""
}

func (g *Generator) errorReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return ReasonMissingCredentials
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return TimeoutReason(g.timeout)
	default:
		log.Warn().Err(err).Msg("Generative service request failed")
		return ReasonRequestFailed
	}
}

// TimeoutReason formats the timeout reason code.
func TimeoutReason(d time.Duration) string {
	return fmt.Sprintf("timeout_%dms", d.Milliseconds())
}

func parseMessage(raw string) (string, string) {
	var resp generalResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return "", ReasonInvalidSchema
	}
	if strings.TrimSpace(resp.Message) == "" {
		return "", ReasonInvalidSchema
	}
	return resp.Message, ""
}

func (g *Generator) fallback(p models.VolatilityPayload, attempts int, repaired bool, reason string) models.GenerationResult {
	log.Info().
		Str("reason", reason).
		Int("attempts", attempts).
		Bool("repaired", repaired).
		Msg("Using template fallback")

	return models.GenerationResult{
		Text:          RenderTemplate(p),
		Success:       false,
		Attempts:      attempts,
		Repaired:      repaired,
		FailureReason: reason,
	}
}
