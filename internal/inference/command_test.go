package inference

import (
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func hasArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

func TestBuildCommandRequiredShape(t *testing.T) {
	params := DefaultParams("v30")
	cmd := BuildCommand("python3", "inference.py", params, "/audio/a.mp3", "/out/a")

	if cmd[0] != "python3" || cmd[1] != "inference.py" || cmd[2] != "-cn" || cmd[3] != "v30" {
		t.Fatalf("unexpected command prefix %v", cmd[:4])
	}
	if !hasArg(cmd, "audio_path='/audio/a.mp3'") {
		t.Fatalf("missing quoted audio path in %v", cmd)
	}
	if !hasArg(cmd, "output_path='/out/a'") {
		t.Fatalf("missing quoted output path in %v", cmd)
	}
	if !hasArg(cmd, "export_osz=true") || !hasArg(cmd, "add_to_beatmap=false") {
		t.Fatalf("missing boolean flags in %v", cmd)
	}
}

func TestBuildCommandOmitsNilOptionals(t *testing.T) {
	cmd := BuildCommand("python3", "inference.py", DefaultParams("v30"), "/a.mp3", "/out")
	for _, arg := range cmd {
		for _, forbidden := range []string{"difficulty=", "seed=", "keycount=", "start_time="} {
			if strings.HasPrefix(arg, forbidden) {
				t.Fatalf("nil optional rendered: %q", arg)
			}
		}
	}
}

func TestBuildCommandIncludesSetOptionals(t *testing.T) {
	params := DefaultParams("v31")
	params.Difficulty = floatPtr(5.5)
	params.Seed = intPtr(42)
	params.Keycount = intPtr(7)
	params.StartTime = intPtr(1000)
	params.EndTime = intPtr(60000)

	cmd := BuildCommand("python3", "inference.py", params, "/a.mp3", "/out")
	for _, want := range []string{"difficulty=5.5", "seed=42", "keycount=7", "start_time=1000", "end_time=60000"} {
		if !hasArg(cmd, want) {
			t.Fatalf("missing %q in %v", want, cmd)
		}
	}
}

func TestBuildCommandQuotesSpecialPaths(t *testing.T) {
	cmd := BuildCommand("python3", "inference.py", DefaultParams("v30"), "/music/it's a song.mp3", "/out")
	if !hasArg(cmd, `audio_path='/music/it\'s a song.mp3'`) {
		t.Fatalf("embedded quote not escaped in %v", cmd)
	}
}

func TestBuildCommandDescriptorList(t *testing.T) {
	params := DefaultParams("v30")
	params.Descriptors = []string{"jump aim", "clean"}
	cmd := BuildCommand("python3", "inference.py", params, "/a.mp3", "/out")
	if !hasArg(cmd, "descriptors=['jump aim','clean']") {
		t.Fatalf("missing descriptor list in %v", cmd)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Params){
		func(p *Params) { p.Model = " " },
		func(p *Params) { p.Gamemode = 4 },
		func(p *Params) { p.CFGScale = 0 },
		func(p *Params) { p.Temperature = -1 },
		func(p *Params) { p.TopP = 1.5 },
		func(p *Params) { p.StartTime = intPtr(500); p.EndTime = intPtr(100) },
	}
	for i, mutate := range cases {
		params := DefaultParams("v30")
		mutate(&params)
		if err := params.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}

	good := DefaultParams("v30")
	if err := good.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateAudioFilename(t *testing.T) {
	for _, name := range []string{"song.mp3", "song.WAV", "a.flac"} {
		if err := ValidateAudioFilename(name); err != nil {
			t.Fatalf("expected %q accepted: %v", name, err)
		}
	}
	for _, name := range []string{"", "song.txt", "archive.zip"} {
		if err := ValidateAudioFilename(name); err == nil {
			t.Fatalf("expected %q rejected", name)
		}
	}
}
