package volatility

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leeaandrob/volwatch/internal/gate"
	"github.com/leeaandrob/volwatch/internal/models"
)

// Scenario is a replayable fixture: a fixed event list observed at successive instants.
type Scenario struct {
	ID     string            `json:"scenario_id"`
	Events []models.RawEvent `json:"events"`
	Steps  []Step            `json:"steps"`
}

// Step is one observation of a scenario.
type Step struct {
	Now      string      `json:"now"`
	Expected Observation `json:"expected"`
}

// Observation is what a step expects or produced.
type Observation struct {
	State     models.State `json:"state"`
	Phase     models.Phase `json:"phase"`
	EventName *string      `json:"event_name"`
	Send      bool         `json:"send"`
}

// StepResult pairs expected and actual observations.
type StepResult struct {
	Index    int         `json:"index"`
	Now      string      `json:"now"`
	Expected Observation `json:"expected"`
	Actual   Observation `json:"actual"`
	Diffs    []string    `json:"diffs,omitempty"`
}

// Passed reports whether the step matched.
func (r StepResult) Passed() bool {
	return len(r.Diffs) == 0
}

// ScenarioResult summarizes one scenario run.
type ScenarioResult struct {
	ID     string       `json:"scenario_id"`
	File   string       `json:"file,omitempty"`
	Steps  []StepResult `json:"steps"`
	Failed int          `json:"failed"`
}

// LoadScenario reads one fixture file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: steps must be a non-empty array", path)
	}
	if sc.ID == "" {
		sc.ID = filepath.Base(path)
	}
	return &sc, nil
}

// LoadScenarios reads every *.json fixture in dir, sorted by file name.
func LoadScenarios(dir string) (map[string]*Scenario, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fixtures directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	sort.Strings(files)

	scenarios := make(map[string]*Scenario, len(files))
	for _, name := range files {
		sc, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, err
		}
		scenarios[name] = sc
	}
	return scenarios, files, nil
}

// RunScenario replays a scenario through the engine and a fresh gate.
func (e *Engine) RunScenario(sc *Scenario) (ScenarioResult, error) {
	res := ScenarioResult{ID: sc.ID}
	g := gate.New()

	for i, step := range sc.Steps {
		now, ok := ParseEventTime(step.Now)
		if !ok {
			return res, fmt.Errorf("scenario %s: invalid step now at index %d: %q", sc.ID, i, step.Now)
		}

		st := e.ComputeState(now, sc.Events)
		actual := Observation{
			State: st.State,
			Phase: st.Phase,
			Send:  g.ShouldNotify(st).Fire,
		}
		if st.PrimaryEvent != nil {
			name := st.PrimaryEvent.Name
			actual.EventName = &name
		}

		sr := StepResult{
			Index:    i + 1,
			Now:      step.Now,
			Expected: step.Expected,
			Actual:   actual,
			Diffs:    diffObservations(step.Expected, actual),
		}
		if !sr.Passed() {
			res.Failed++
		}
		res.Steps = append(res.Steps, sr)
	}
	return res, nil
}

func diffObservations(expected, actual Observation) []string {
	var diffs []string
	if expected.State != actual.State {
		diffs = append(diffs, fmt.Sprintf("state expected=%s actual=%s", expected.State, actual.State))
	}
	if expected.Phase != actual.Phase {
		diffs = append(diffs, fmt.Sprintf("phase expected=%s actual=%s", expected.Phase, actual.Phase))
	}
	if nameOrNull(expected.EventName) != nameOrNull(actual.EventName) {
		diffs = append(diffs, fmt.Sprintf("event_name expected=%s actual=%s",
			nameOrNull(expected.EventName), nameOrNull(actual.EventName)))
	}
	if expected.Send != actual.Send {
		diffs = append(diffs, fmt.Sprintf("send expected=%t actual=%t", expected.Send, actual.Send))
	}
	return diffs
}

func nameOrNull(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
