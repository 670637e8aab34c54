package judge

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"neural-garden/internal/domain"

	"github.com/gosimple/slug"
)

const UnknownCategory = "unknown"

type Verdict struct {
	Reply  string `json:"reply"`
	Solved bool   `json:"solved"`
}

// Outcome is the judge reply after win evaluation.
type Outcome struct {
	Reply      string
	Solved     bool
	Structured bool
}

// VerdictSchema is sent as the json_schema response format when structured verdicts are enabled.
var VerdictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"reply":  map[string]any{"type": "string"},
		"solved": map[string]any{"type": "boolean"},
	},
	"required":             []string{"reply", "solved"},
	"additionalProperties": false,
}

// Detect applies the marker heuristic to a free-text reply.
func Detect(mode domain.Mode, reply string) bool {
	switch mode {
	case domain.ModeRiddle, domain.ModeTwentyQuestions:
		return strings.Contains(reply, TwentyQuestionsWinMarker)
	case domain.ModeAgentChallenge:
		return strings.Contains(reply, AgentChallengeWinMarker)
	}
	return false
}

// Evaluate reads a structured verdict when structured is set and falls back to
// marker matching otherwise. Free-text replies are never parsed as JSON.
// Debate replies never win immediately.
func Evaluate(mode domain.Mode, raw string, structured bool) Outcome {
	if !structured {
		return Outcome{Reply: raw, Solved: Detect(mode, raw)}
	}
	if v, ok := ParseVerdict(raw); ok {
		return Outcome{
			Reply:      v.Reply,
			Solved:     v.Solved && mode != domain.ModeDebateArena,
			Structured: true,
		}
	}
	return Outcome{Reply: raw, Solved: Detect(mode, raw)}
}

func ParseVerdict(raw string) (Verdict, bool) {
	var probe struct {
		Reply  *string `json:"reply"`
		Solved *bool   `json:"solved"`
	}

	candidate := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		obj := extractJSONObject(candidate)
		if obj == "" {
			return Verdict{}, false
		}
		if err := json.Unmarshal([]byte(obj), &probe); err != nil {
			return Verdict{}, false
		}
	}
	if probe.Reply == nil || probe.Solved == nil {
		return Verdict{}, false
	}
	return Verdict{Reply: *probe.Reply, Solved: *probe.Solved}, true
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

// ParseScore reads the leading number of a scorer reply, clamped to [0, 10].
// Unparseable replies score zero.
func ParseScore(raw string) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0
	}
	score, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	switch {
	case score < 0:
		return 0
	case score > 10:
		return 10
	}
	return score
}

// NormalizeCategory maps a classifier reply onto a known category slug.
func NormalizeCategory(raw string) string {
	s := slug.Make(raw)
	if s == "" {
		return UnknownCategory
	}
	for _, c := range Categories {
		if s == c || strings.Contains(s, c) {
			return c
		}
	}
	return UnknownCategory
}
