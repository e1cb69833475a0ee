package inference

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Params describes one generation request. Pointer fields are omitted from
// the worker command line when nil, letting the worker apply its own
// defaults.
type Params struct {
	Model    string
	Gamemode int

	Difficulty *float64
	Year       *int
	MapperID   *int

	HPDrainRate       *float64
	CircleSize        *float64
	OverallDifficulty *float64
	ApproachRate      *float64
	SliderMultiplier  *float64
	SliderTickRate    *float64

	Keycount         *int
	HoldNoteRatio    *float64
	ScrollSpeedRatio *float64

	CFGScale    float64
	Temperature float64
	TopP        float64
	Seed        *int

	StartTime *int
	EndTime   *int

	ExportOsz    bool
	AddToBeatmap bool
	Hitsounded   bool
	SuperTiming  bool

	Descriptors         []string
	NegativeDescriptors []string
}

// DefaultParams returns the request defaults applied when a submission omits
// a value.
func DefaultParams(model string) Params {
	if strings.TrimSpace(model) == "" {
		model = "v30"
	}
	return Params{
		Model:       model,
		Gamemode:    0,
		CFGScale:    1.0,
		Temperature: 0.9,
		TopP:        0.9,
		ExportOsz:   true,
	}
}

// supported audio container extensions, lower case.
var validAudioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".ogg":  {},
	".m4a":  {},
	".flac": {},
}

// ValidateAudioFilename rejects uploads whose extension the worker cannot
// decode.
func ValidateAudioFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("no audio filename provided")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := validAudioExtensions[ext]; !ok {
		return fmt.Errorf("unsupported audio type %q (supported: .mp3 .wav .ogg .m4a .flac)", ext)
	}
	return nil
}

// Validate reports parameter values the worker would reject.
func (p *Params) Validate() error {
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("model configuration name required")
	}
	if p.Gamemode < 0 || p.Gamemode > 3 {
		return fmt.Errorf("gamemode must be 0-3, got %d", p.Gamemode)
	}
	if p.CFGScale <= 0 {
		return fmt.Errorf("cfg_scale must be positive, got %v", p.CFGScale)
	}
	if p.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %v", p.Temperature)
	}
	if p.TopP <= 0 || p.TopP > 1 {
		return fmt.Errorf("top_p must be in (0,1], got %v", p.TopP)
	}
	if p.StartTime != nil && p.EndTime != nil && *p.EndTime <= *p.StartTime {
		return fmt.Errorf("end_time must be after start_time")
	}
	return nil
}
