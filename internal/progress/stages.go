package progress

import "strings"

// Rule maps an output keyword to a named stage and its progress range.
// Ranges come from observed worker runs; a recognized stage pulls progress
// up to Start but never pushes it backward.
type Rule struct {
	Keyword string
	Stage   string
	Start   float64
	End     float64
}

// Table is an ordered, immutable set of stage rules. Lookup prefers the
// longest matching keyword so "generating timing" beats "generating".
type Table []Rule

// DefaultTable returns the stage rules for the beatmap generation worker.
func DefaultTable() Table {
	return Table{
		// Device / startup banners.
		{Keyword: "using cuda for inference", Stage: "initializing", Start: 0, End: 5},
		{Keyword: "using mps for inference", Stage: "initializing", Start: 0, End: 5},
		{Keyword: "using cpu for inference", Stage: "initializing", Start: 0, End: 5},
		{Keyword: "random seed", Stage: "loading_model", Start: 5, End: 10},
		{Keyword: "model loaded", Stage: "model_ready", Start: 10, End: 15},

		// Generation phases.
		{Keyword: "generating map", Stage: "generating_map", Start: 15, End: 85},
		{Keyword: "generating timing", Stage: "generating_timing", Start: 15, End: 40},
		{Keyword: "generating kiai", Stage: "generating_kiai", Start: 40, End: 60},
		{Keyword: "generated beatmap saved", Stage: "saving", Start: 85, End: 95},
		{Keyword: "generated .osz saved", Stage: "completed", Start: 95, End: 100},
		{Keyword: "seq len", Stage: "refining_positions", Start: 85, End: 95},

		// Generic phase words.
		{Keyword: "loading", Stage: "loading", Start: 0, End: 10},
		{Keyword: "load", Stage: "loading", Start: 0, End: 10},
		{Keyword: "initializing", Stage: "initializing", Start: 0, End: 5},
		{Keyword: "preprocessing", Stage: "preprocessing", Start: 5, End: 15},
		{Keyword: "processing", Stage: "processing", Start: 10, End: 50},
		{Keyword: "inference", Stage: "inference", Start: 30, End: 80},
		{Keyword: "generating", Stage: "generating", Start: 40, End: 85},
		{Keyword: "postprocessing", Stage: "postprocessing", Start: 85, End: 95},
		{Keyword: "saving", Stage: "saving", Start: 95, End: 100},
		{Keyword: "export", Stage: "export", Start: 95, End: 100},
		{Keyword: "complete", Stage: "completed", Start: 100, End: 100},
		{Keyword: "finished", Stage: "completed", Start: 100, End: 100},
		{Keyword: "done", Stage: "completed", Start: 100, End: 100},

		// Model loading artifacts.
		{Keyword: "model", Stage: "loading", Start: 0, End: 10},
		{Keyword: "tokenizer", Stage: "loading", Start: 5, End: 15},
		{Keyword: "config", Stage: "loading", Start: 0, End: 10},
		{Keyword: "checkpoint", Stage: "loading", Start: 5, End: 15},

		// Audio preprocessing.
		{Keyword: "audio", Stage: "preprocessing", Start: 10, End: 25},
		{Keyword: "spectrogram", Stage: "preprocessing", Start: 15, End: 30},
		{Keyword: "feature", Stage: "preprocessing", Start: 20, End: 35},

		// Device probing.
		{Keyword: "cuda", Stage: "initializing", Start: 0, End: 5},
		{Keyword: "device", Stage: "initializing", Start: 0, End: 5},
		{Keyword: "gpu", Stage: "initializing", Start: 0, End: 5},
	}
}

// errorKeywords mark a line as reporting worker trouble. They change the
// stage label only; job failure is decided by the exit code.
var errorKeywords = []string{"error", "failed", "exception", "traceback"}

// Match returns the rule with the longest keyword contained in line,
// case-insensitively.
func (t Table) Match(line string) (Rule, bool) {
	lower := strings.ToLower(line)
	var best Rule
	bestLen := 0
	for _, rule := range t {
		if len(rule.Keyword) > bestLen && strings.Contains(lower, rule.Keyword) {
			best = rule
			bestLen = len(rule.Keyword)
		}
	}
	return best, bestLen > 0
}

func matchesError(line string) bool {
	lower := strings.ToLower(line)
	for _, keyword := range errorKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// generatingStages grow slowly under the elapsed-time fallback; loading
// stages grow quickly.
var generatingStages = map[string]struct{}{
	"generating_map":    {},
	"generating_timing": {},
	"generating_kiai":   {},
	"inference":         {},
	"generating":        {},
}

var loadingStages = map[string]struct{}{
	"loading":       {},
	"loading_model": {},
	"initializing":  {},
}
