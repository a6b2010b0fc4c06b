package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leeaandrob/volwatch/internal/models"
)

// generalResponse is the JSON shape of a full message candidate.
type generalResponse struct {
	Message string `json:"message"`
	Tone    string `json:"tone"`
}

// secondLineResponse is the JSON shape of a during-event second line.
type secondLineResponse struct {
	SecondLine *string `json:"second_line"`
}

const repairTemplate = "The message violates rule: %s. Rewrite it keeping the meaning and following every rule strictly."

func (g *Generator) generalSystemPrompt(p models.VolatilityPayload) string {
	var b strings.Builder
	b.WriteString("You write short Telegram notifications about macroeconomic volatility windows for traders.\n\n")
	b.WriteString("HARD RULES:\n")
	fmt.Fprintf(&b, "- At most %d characters.\n", g.policy.MaxLength)
	fmt.Fprintf(&b, "- At most %d sentences.\n", g.policy.MaxSentences)
	fmt.Fprintf(&b, "- Never use these words or phrases: %s.\n", strings.Join(g.policy.ForbiddenWords, ", "))
	b.WriteString("- Neutral, factual tone. No advice, no forecasts, no alarm.\n")
	if p.ImpactType == models.ImpactTypeAnchorHigh && p.EventName != "" {
		fmt.Fprintf(&b, "- The message MUST contain the exact event name %q.\n", p.EventName)
	}
	if p.ClusterHasAnchor && p.Phase != models.PhaseDuring && len(p.ClusterAnchorNames) > 0 {
		fmt.Fprintf(&b, "- The message MUST mention one of these releases by exact name: %s.\n",
			strings.Join(p.ClusterAnchorNames, ", "))
	}
	if p.Phase == models.PhaseDuring {
		fmt.Fprintf(&b, "- The message MUST start with the exact line %q.\n", DuringFirstLine(p))
	}
	b.WriteString("\nRespond ONLY with JSON: {\"message\": string, \"tone\": string}.")
	return b.String()
}

func (g *Generator) duringSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You write the second line of a Telegram notification sent while economic data is being released.\n\n")
	b.WriteString("HARD RULES:\n")
	b.WriteString("- Exactly one short neutral sentence about the market reaction.\n")
	b.WriteString("- Do not repeat the event name. No advice, no forecasts, no alarm.\n")
	fmt.Fprintf(&b, "- Never use these words or phrases: %s.\n", strings.Join(g.policy.ForbiddenWords, ", "))
	b.WriteString("\nRespond ONLY with JSON: {\"second_line\": string}.")
	return b.String()
}

// userContext renders the payload the model describes.
func userContext(p models.VolatilityPayload) string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"state": %q, "phase": %q}`, p.State, p.Phase))
	}
	return "Volatility state:\n" + string(data)
}

func duringUserContext(p models.VolatilityPayload) string {
	return fmt.Sprintf("First line (already written): %s\n\n%s", DuringFirstLine(p), userContext(p))
}

func repairInstruction(reason string) string {
	return fmt.Sprintf(repairTemplate, reason)
}
