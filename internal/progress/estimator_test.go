package progress

import (
	"testing"
	"time"
)

var testStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestEstimator() *Estimator {
	return NewEstimator(DefaultTable(), DefaultTuning())
}

func TestExtractPercentTqdmFraction(t *testing.T) {
	line := "  50%|██████████   | 1/2 [00:03<00:03,  3.20s/it]"
	percent, ok := ExtractPercent(line)
	if !ok {
		t.Fatalf("expected structured percent from %q", line)
	}
	if percent != 50.0 {
		t.Fatalf("expected 50.0 from fraction 1/2, got %v", percent)
	}
}

func TestExtractPercentPrefersFractionOverDisplay(t *testing.T) {
	// Displayed percentage disagrees with the fraction; the fraction wins.
	percent, ok := ExtractPercent(" 33%|███       | 2/3 [00:10<00:05]")
	if !ok {
		t.Fatal("expected structured percent")
	}
	want := 2.0 / 3.0 * 100
	if percent < want-0.001 || percent > want+0.001 {
		t.Fatalf("expected %v from fraction 2/3, got %v", want, percent)
	}
}

func TestExtractPercentVariants(t *testing.T) {
	cases := []struct {
		line string
		want float64
	}{
		{"  7%|▋", 7},
		{"Progress: 62.5%", 62.5},
		{"12.5% complete", 12.5},
		{"Step 3 of 10", 30},
		{"Processing audio features... 45%", 45},
		{"epoch done, 88% elapsed", 88},
		{"wrote 150% of budget", 100},
	}
	for _, tc := range cases {
		got, ok := ExtractPercent(tc.line)
		if !ok {
			t.Fatalf("expected percent from %q", tc.line)
		}
		if got != tc.want {
			t.Fatalf("line %q: expected %v, got %v", tc.line, tc.want, got)
		}
	}
}

func TestExtractPercentRejectsPlainText(t *testing.T) {
	for _, line := range []string{"", "   ", "loading model weights", "Using cuda for inference"} {
		if percent, ok := ExtractPercent(line); ok {
			t.Fatalf("expected no percent from %q, got %v", line, percent)
		}
	}
}

func TestEstimateStructuredBeatsKeywords(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 10, Stage: "loading", LastUpdate: testStart}
	next, changed := est.Estimate("Generating map: 42%", prior, testStart, testStart.Add(time.Second))
	if !changed {
		t.Fatal("expected an update")
	}
	if next.Percent != 42 {
		t.Fatalf("expected structured 42, got %v", next.Percent)
	}
	if next.Estimated {
		t.Fatal("structured extraction must not be flagged as estimated")
	}
	if next.Stage != "generating_map" {
		t.Fatalf("expected stage context from the same line, got %q", next.Stage)
	}
}

func TestEstimateStageTransition(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 10, Stage: "model_ready", LastUpdate: testStart}
	next, changed := est.Estimate("Generating timing points", prior, testStart, testStart.Add(time.Second))
	if !changed {
		t.Fatal("expected an update")
	}
	if next.Percent != 15 {
		t.Fatalf("expected jump to range start 15, got %v", next.Percent)
	}
	if next.Stage != "generating_timing" {
		t.Fatalf("expected generating_timing, got %q", next.Stage)
	}
	if !next.Estimated {
		t.Fatal("stage inference must be flagged as estimated")
	}
}

func TestEstimateLongestKeywordWins(t *testing.T) {
	table := DefaultTable()
	rule, ok := table.Match("now generating timing and generating the rest")
	if !ok {
		t.Fatal("expected a keyword match")
	}
	if rule.Stage != "generating_timing" {
		t.Fatalf("expected the longer keyword to win, got %q", rule.Stage)
	}
}

func TestEstimateStageNeverMovesBackward(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 70, Stage: "generating_kiai", LastUpdate: testStart}
	next, changed := est.Estimate("Generating timing refinement", prior, testStart, testStart.Add(time.Second))
	if !changed {
		t.Fatal("expected a stage label update")
	}
	if next.Percent != 70 {
		t.Fatalf("stage transition must not reduce progress, got %v", next.Percent)
	}
	if next.Stage != "generating_timing" {
		t.Fatalf("expected label update, got %q", next.Stage)
	}
}

func TestEstimateEmptyLineNoUpdate(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 40, Stage: "inference", LastUpdate: testStart}
	for _, line := range []string{"", "   ", "\t"} {
		next, changed := est.Estimate(line, prior, testStart, testStart.Add(time.Minute))
		if changed {
			t.Fatalf("expected no update for %q", line)
		}
		if next != prior {
			t.Fatalf("state mutated by blank line %q", line)
		}
	}
}

func TestEstimateErrorKeywordKeepsPercent(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 55, Stage: "generating_map", LastUpdate: testStart}
	next, changed := est.Estimate("Traceback (most recent call last):", prior, testStart, testStart.Add(time.Second))
	if !changed {
		t.Fatal("expected a stage update")
	}
	if next.Stage != "error" {
		t.Fatalf("expected error stage, got %q", next.Stage)
	}
	if next.Percent != 55 {
		t.Fatalf("error lines must not change numeric progress, got %v", next.Percent)
	}
}

func TestEstimateIsPure(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 20, Stage: "preprocessing", LastUpdate: testStart}
	now := testStart.Add(10 * time.Second)
	first, _ := est.Estimate("Generating kiai sections", prior, testStart, now)
	for i := 0; i < 5; i++ {
		again, _ := est.Estimate("Generating kiai sections", prior, testStart, now)
		if again != first {
			t.Fatalf("identical inputs produced different outputs: %+v vs %+v", first, again)
		}
	}
}

func TestEstimateMonotonicOverSequence(t *testing.T) {
	est := newTestEstimator()
	lines := []string{
		"Using cuda for inference",
		"random seed 42",
		"Model loaded",
		"Generating timing points",
		"  20%|██        | 2/10",
		"  10%|█         | 1/10", // late tqdm line from a second bar
		"Generating kiai sections",
		"  90%|█████████ | 9/10",
		"Generated beatmap saved",
	}
	state := State{Stage: "initializing", LastUpdate: testStart}
	now := testStart
	last := 0.0
	for _, line := range lines {
		now = now.Add(time.Second)
		next, _ := est.Estimate(line, state, testStart, now)
		if next.Percent < last {
			t.Fatalf("progress decreased from %v to %v at line %q", last, next.Percent, line)
		}
		last = next.Percent
		state = next
	}
}

func TestElapsedFallbackRespectsQuiescence(t *testing.T) {
	est := newTestEstimator()
	prior := State{Percent: 30, Stage: "inference", LastUpdate: testStart}

	// Inside the quiet window nothing moves.
	if _, changed := est.Estimate("no signal here", prior, testStart, testStart.Add(2*time.Second)); changed {
		t.Fatal("fallback fired before the quiescence interval elapsed")
	}

	// After the window the nudge applies.
	next, changed := est.Estimate("no signal here", prior, testStart, testStart.Add(30*time.Second))
	if !changed {
		t.Fatal("expected fallback update after quiet period")
	}
	if next.Percent <= prior.Percent {
		t.Fatalf("fallback must increase progress, got %v", next.Percent)
	}
	if !next.Estimated {
		t.Fatal("fallback progress must be flagged as estimated")
	}
}

func TestElapsedFallbackCapped(t *testing.T) {
	est := newTestEstimator()
	state := State{Percent: 0, Stage: "processing", LastUpdate: testStart}
	now := testStart
	for i := 0; i < 500; i++ {
		now = now.Add(10 * time.Second)
		next, changed := est.Estimate("still waiting", state, testStart, now)
		if !changed {
			continue
		}
		if next.Percent > 95 {
			t.Fatalf("fallback exceeded the estimated ceiling: %v", next.Percent)
		}
		state = next
	}
	if state.Percent < 80 {
		t.Fatalf("expected fallback to approach the ceiling, got %v", state.Percent)
	}
}

func TestElapsedFallbackBoundedByWallClock(t *testing.T) {
	est := newTestEstimator()
	// Ten seconds into an assumed 180-second job, extrapolation allows only
	// a few percent no matter how quiet the worker has been.
	prior := State{Percent: 0, Stage: "processing", LastUpdate: testStart}
	next, changed := est.Estimate("quiet", prior, testStart, testStart.Add(10*time.Second))
	if !changed {
		t.Fatal("expected a fallback update")
	}
	if next.Percent > 10.0/180.0*100+0.001 {
		t.Fatalf("fallback outran the wall-clock extrapolation: %v", next.Percent)
	}
}

func TestLabel(t *testing.T) {
	cases := map[string]string{
		"generating_timing": "Generating Timing",
		"initializing":      "Initializing",
		"model_ready":       "Model Ready",
		"":                  "Progress",
	}
	for stage, want := range cases {
		if got := Label(stage); got != want {
			t.Fatalf("Label(%q) = %q, want %q", stage, got, want)
		}
	}
}
