package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State is the estimator's view of a job's progress.
type State struct {
	Percent    float64
	Stage      string
	Estimated  bool
	LastUpdate time.Time
}

// Tuning holds the empirical constants behind the elapsed-time fallback.
// They shape the heuristic only; nothing depends on them for correctness.
type Tuning struct {
	// Quiescence is the minimum output silence before progress is nudged.
	Quiescence time.Duration
	// AssumedTotal is the assumed total job duration used to extrapolate
	// progress from elapsed wall time.
	AssumedTotal time.Duration
	// MaxEstimated caps heuristic progress; the remainder is reserved for
	// confirmed completion.
	MaxEstimated float64
}

// DefaultTuning mirrors the durations observed across typical generation runs.
func DefaultTuning() Tuning {
	return Tuning{
		Quiescence:   5 * time.Second,
		AssumedTotal: 180 * time.Second,
		MaxEstimated: 95,
	}
}

// Estimator converts raw worker output lines into progress updates. It holds
// only immutable configuration; Estimate is a pure function of its arguments.
type Estimator struct {
	table  Table
	tuning Tuning
}

// NewEstimator builds an estimator over the given stage table and tuning.
// Zero-valued tuning fields fall back to defaults.
func NewEstimator(table Table, tuning Tuning) *Estimator {
	if len(table) == 0 {
		table = DefaultTable()
	}
	defaults := DefaultTuning()
	if tuning.Quiescence <= 0 {
		tuning.Quiescence = defaults.Quiescence
	}
	if tuning.AssumedTotal <= 0 {
		tuning.AssumedTotal = defaults.AssumedTotal
	}
	if tuning.MaxEstimated <= 0 || tuning.MaxEstimated > 100 {
		tuning.MaxEstimated = defaults.MaxEstimated
	}
	return &Estimator{table: table, tuning: tuning}
}

// Estimate applies one line of worker output to the prior state. startedAt is
// the job launch time and now the observation time; passing them explicitly
// keeps Estimate referentially transparent. The returned bool reports whether
// the state changed.
//
// Resolution order: structured percent extraction, then stage keywords, then
// the elapsed-time fallback. Progress never decreases.
func (e *Estimator) Estimate(line string, prior State, startedAt, now time.Time) (State, bool) {
	if strings.TrimSpace(line) == "" {
		return prior, false
	}

	if percent, ok := ExtractPercent(line); ok {
		next := prior
		if percent > next.Percent {
			next.Percent = percent
		}
		next.Estimated = false
		next.LastUpdate = now
		// A structured value may still carry stage context on the same line.
		if matchesError(line) {
			next.Stage = "error"
		} else if rule, ok := e.table.Match(line); ok {
			next.Stage = rule.Stage
		}
		return next, true
	}

	if matchesError(line) {
		next := prior
		next.Stage = "error"
		next.Estimated = true
		next.LastUpdate = now
		return next, true
	}

	if rule, ok := e.table.Match(line); ok {
		next := prior
		if prior.Percent < rule.Start {
			next.Percent = rule.Start
		}
		next.Stage = rule.Stage
		next.Estimated = true
		next.LastUpdate = now
		return next, true
	}

	return e.elapsedFallback(prior, startedAt, now)
}

// elapsedFallback nudges progress upward after a quiet period, bounded by a
// wall-time extrapolation and the estimated-progress ceiling.
func (e *Estimator) elapsedFallback(prior State, startedAt, now time.Time) (State, bool) {
	if now.Sub(prior.LastUpdate) <= e.tuning.Quiescence {
		return prior, false
	}

	totalElapsed := now.Sub(startedAt)
	timeBased := (totalElapsed.Seconds() / e.tuning.AssumedTotal.Seconds()) * 100
	if timeBased > 90 {
		timeBased = 90
	}

	var increment float64
	switch {
	case stageIn(prior.Stage, generatingStages):
		increment = minFloat(2.0, (100-prior.Percent)*0.08)
	case stageIn(prior.Stage, loadingStages):
		increment = minFloat(5.0, (30-prior.Percent)*0.2)
	default:
		increment = minFloat(3.0, (100-prior.Percent)*0.1)
	}

	next := minFloat(minFloat(timeBased, prior.Percent+increment), e.tuning.MaxEstimated)
	if next <= prior.Percent {
		return prior, false
	}

	updated := prior
	updated.Percent = next
	updated.Estimated = true
	updated.LastUpdate = now
	return updated, true
}

var (
	// tqdm renders "  50%|██████    | 1/2 [00:01<00:01]" on a single line.
	tqdmFullRe   = regexp.MustCompile(`^\s*(\d+)%\|.*?\|\s*(\d+)/(\d+)`)
	tqdmInlineRe = regexp.MustCompile(`(\d+)%\|.*?\|\s*(\d+)/(\d+)`)
	tqdmBarRe    = regexp.MustCompile(`^\s*(\d+)%\|`)

	progressMarkerRe = regexp.MustCompile(`(?i)Progress:\s*(\d+(?:\.\d+)?)%`)
	completeRe       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)%\s*complete`)
	stepOfRe         = regexp.MustCompile(`(?i)Step\s+(\d+)\s+of\s+(\d+)`)
	phraseRe         = regexp.MustCompile(`(?i)(?:Processing|Generating).*?(\d+)%`)
	barePercentRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	fractionRe       = regexp.MustCompile(`(\d+)/(\d+)`)
)

// ExtractPercent parses a structured progress value from a line. The tqdm
// fraction is preferred over the displayed percentage because the fraction
// carries more precision.
func ExtractPercent(line string) (float64, bool) {
	for _, re := range []*regexp.Regexp{tqdmFullRe, tqdmInlineRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			current, err1 := strconv.ParseFloat(m[2], 64)
			total, err2 := strconv.ParseFloat(m[3], 64)
			if err1 == nil && err2 == nil && total > 0 {
				return clampPercent(current / total * 100), true
			}
			if display, err := strconv.ParseFloat(m[1], 64); err == nil {
				return clampPercent(display), true
			}
		}
	}
	if m := tqdmBarRe.FindStringSubmatch(line); m != nil {
		if percent, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clampPercent(percent), true
		}
	}
	for _, re := range []*regexp.Regexp{progressMarkerRe, completeRe, phraseRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			if percent, err := strconv.ParseFloat(m[1], 64); err == nil {
				return clampPercent(percent), true
			}
		}
	}
	if percent, ok := bareDisplayPercent(line); ok {
		return clampPercent(percent), true
	}
	if m := stepOfRe.FindStringSubmatch(line); m != nil {
		step, err1 := strconv.ParseFloat(m[1], 64)
		total, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && total > 0 {
			return clampPercent(step / total * 100), true
		}
	}
	if m := fractionRe.FindStringSubmatch(line); m != nil {
		current, err1 := strconv.ParseFloat(m[1], 64)
		total, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && total > 0 {
			return clampPercent(current / total * 100), true
		}
	}
	return 0, false
}

// bareDisplayPercent matches "N%" not immediately followed by '|', which
// would be a tqdm bar handled above.
func bareDisplayPercent(line string) (float64, bool) {
	for _, loc := range barePercentRe.FindAllStringSubmatchIndex(line, -1) {
		end := loc[1]
		if end < len(line) && line[end] == '|' {
			continue
		}
		percent, err := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}
		return percent, true
	}
	return 0, false
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func stageIn(stage string, set map[string]struct{}) bool {
	_, ok := set[stage]
	return ok
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
