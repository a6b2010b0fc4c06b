package content

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeaandrob/volwatch/internal/models"
)

type reply struct {
	text string
	err  error
}

type call struct {
	system string
	turns  []string
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []reply
	calls   []call
	block   bool
}

func (f *fakeLLM) GenerateCandidate(ctx context.Context, system string, turns []string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{system: system, turns: append([]string(nil), turns...)})
	idx := len(f.calls) - 1
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if idx >= len(f.replies) {
		return "", errors.New("no scripted reply")
	}
	return f.replies[idx].text, f.replies[idx].err
}

func newTestGenerator(llm CandidateGenerator) *Generator {
	return NewGenerator(llm, DefaultPolicy(), time.Second)
}

func TestGenerate_ValidFirstCandidate(t *testing.T) {
	llm := &fakeLLM{replies: []reply{{text: `{"message": "Important data is due in 12 minutes.", "tone": "neutral"}`}}}
	g := newTestGenerator(llm)

	res := g.Generate(context.Background(), redPayload(models.ImpactTypeHigh, models.PhasePre))

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Repaired)
	assert.Empty(t, res.FailureReason)
	assert.Equal(t, "Important data is due in 12 minutes.", res.Text)
	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].system, "At most 220 characters")
}

func TestGenerate_RepairSucceeds(t *testing.T) {
	bad := `{"message": "We recommend patience before the data.", "tone": "neutral"}`
	llm := &fakeLLM{replies: []reply{
		{text: bad},
		{text: `{"message": "Important data is due in 12 minutes.", "tone": "neutral"}`},
	}}
	g := newTestGenerator(llm)

	res := g.Generate(context.Background(), redPayload(models.ImpactTypeHigh, models.PhasePre))

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Repaired)
	assert.Equal(t, "Important data is due in 12 minutes.", res.Text)

	require.Len(t, llm.calls, 2)
	repair := llm.calls[1].turns
	require.Len(t, repair, 3)
	assert.Equal(t, bad, repair[1])
	assert.Equal(t, repairInstruction("forbidden_word:recommend"), repair[2])
}

func TestGenerate_RepairFailsFallsBack(t *testing.T) {
	p := redPayload(models.ImpactTypeAnchorHigh, models.PhasePre)
	llm := &fakeLLM{replies: []reply{
		{text: `{"message": "Data soon.", "tone": "neutral"}`},
		{text: `{"message": "Still no name.", "tone": "neutral"}`},
	}}
	g := newTestGenerator(llm)

	res := g.Generate(context.Background(), p)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Repaired)
	assert.Equal(t, ReasonMissingEventName, res.FailureReason)
	assert.Equal(t, RenderTemplate(p), res.Text)
}

func TestGenerate_RepairCallErrorFallsBack(t *testing.T) {
	p := redPayload(models.ImpactTypeHigh, models.PhasePre)
	llm := &fakeLLM{replies: []reply{
		{text: `{"message": "One. Two. Three. Four.", "tone": "neutral"}`},
		{err: errors.New("connection reset")},
	}}
	g := newTestGenerator(llm)

	res := g.Generate(context.Background(), p)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Repaired)
	assert.Equal(t, ReasonRequestFailed, res.FailureReason)
	assert.Equal(t, RenderTemplate(p), res.Text)
}

func TestGenerate_FirstAttemptFailures(t *testing.T) {
	tests := []struct {
		name   string
		reply  reply
		reason string
	}{
		{"empty response", reply{text: "  "}, ReasonEmptyResponse},
		{"malformed json", reply{text: "not json"}, ReasonInvalidSchema},
		{"missing message", reply{text: `{"tone": "neutral"}`}, ReasonInvalidSchema},
		{"transport error", reply{err: errors.New("502 bad gateway")}, ReasonRequestFailed},
		{"no credentials", reply{err: ErrMissingCredentials}, ReasonMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := redPayload(models.ImpactTypeHigh, models.PhasePost)
			llm := &fakeLLM{replies: []reply{tt.reply}}

			res := newTestGenerator(llm).Generate(context.Background(), p)

			assert.False(t, res.Success)
			assert.Equal(t, 1, res.Attempts)
			assert.False(t, res.Repaired)
			assert.Equal(t, tt.reason, res.FailureReason)
			assert.Equal(t, RenderTemplate(p), res.Text)
			assert.Len(t, llm.calls, 1)
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	p := redPayload(models.ImpactTypeHigh, models.PhasePre)
	llm := &fakeLLM{block: true}
	g := NewGenerator(llm, DefaultPolicy(), 20*time.Millisecond)

	res := g.Generate(context.Background(), p)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "timeout_20ms", res.FailureReason)
	assert.Equal(t, RenderTemplate(p), res.Text)
}

func TestGenerate_NilGenerator(t *testing.T) {
	p := models.VolatilityPayload{State: models.StateGreen, Phase: models.PhaseNone}

	res := NewGenerator(nil, DefaultPolicy(), 0).Generate(context.Background(), p)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonMissingCredentials, res.FailureReason)
	assert.Equal(t, greenSingle, res.Text)
}

func TestGenerate_DuringRestrictedMode(t *testing.T) {
	p := redPayload(models.ImpactTypeAnchorHigh, models.PhaseDuring)
	llm := &fakeLLM{replies: []reply{{text: `{"second_line": "Prices are adjusting quickly."}`}}}

	res := newTestGenerator(llm).Generate(context.Background(), p)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "Data released: Non-Farm Payrolls.\nPrices are adjusting quickly.", res.Text)
	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].turns[0], "Data released: Non-Farm Payrolls.")
}

func TestGenerate_DuringRestrictedModeFailures(t *testing.T) {
	tests := []struct {
		name   string
		reply  reply
		reason string
	}{
		{"missing field", reply{text: `{"message": "hi"}`}, ReasonInvalidSchema},
		{"empty line", reply{text: `{"second_line": " "}`}, ReasonEmptySecondLine},
		{"two sentences", reply{text: `{"second_line": "Prices move. Spreads widen."}`}, ReasonSecondLineTooManySentences},
		{"forbidden word", reply{text: `{"second_line": "Volatility is extreme."}`}, "forbidden_word:extreme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := redPayload(models.ImpactTypeHigh, models.PhaseDuring)
			llm := &fakeLLM{replies: []reply{tt.reply}}

			res := newTestGenerator(llm).Generate(context.Background(), p)

			assert.False(t, res.Success)
			assert.Equal(t, 1, res.Attempts)
			assert.False(t, res.Repaired)
			assert.Equal(t, tt.reason, res.FailureReason)
			assert.Equal(t, RenderTemplate(p), res.Text)
			assert.Len(t, llm.calls, 1, "during mode never repairs")
		})
	}
}

func TestGenerate_DuringFullMessageRevalidated(t *testing.T) {
	p := redPayload(models.ImpactTypeHigh, models.PhaseDuring)
	long := `{"second_line": "` + strings.Repeat("x", 230) + `"}`
	llm := &fakeLLM{replies: []reply{{text: long}}}

	res := newTestGenerator(llm).Generate(context.Background(), p)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonTooLong, res.FailureReason)
}

func TestTimeoutReason(t *testing.T) {
	assert.Equal(t, "timeout_8000ms", TimeoutReason(DefaultTimeout))
}
