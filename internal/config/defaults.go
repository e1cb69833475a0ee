package config

const (
	defaultAudioDir            = "~/.local/share/mapsmith/audio"
	defaultOutputDir           = "~/.local/share/mapsmith/outputs"
	defaultLogDir              = "~/.local/share/mapsmith/logs"
	defaultAPIBind             = "127.0.0.1:7915"
	defaultWorkerPython        = "python3"
	defaultWorkerScript        = "inference.py"
	defaultWorkerModel         = "v30"
	defaultQuiescenceSeconds   = 5
	defaultAssumedTotalSeconds = 180
	defaultMaxEstimatedPercent = 95.0
	defaultCachePath           = "~/.local/share/mapsmith/cache.db"
	defaultProgressTTLSeconds  = 7200
	defaultMetadataTTLSeconds  = 7200
	defaultFilesTTLSeconds     = 3600
	defaultJanitorInterval     = 300
	defaultJanitorRetention    = 3600
	defaultLogFormat           = "text"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AudioDir:  defaultAudioDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Worker: Worker{
			Python:       defaultWorkerPython,
			Script:       defaultWorkerScript,
			DefaultModel: defaultWorkerModel,
		},
		Progress: Progress{
			QuiescenceSeconds:   defaultQuiescenceSeconds,
			AssumedTotalSeconds: defaultAssumedTotalSeconds,
			MaxEstimatedPercent: defaultMaxEstimatedPercent,
		},
		Cache: Cache{
			Enabled:            true,
			Path:               defaultCachePath,
			ProgressTTLSeconds: defaultProgressTTLSeconds,
			MetadataTTLSeconds: defaultMetadataTTLSeconds,
			FilesTTLSeconds:    defaultFilesTTLSeconds,
		},
		Janitor: Janitor{
			IntervalSeconds:  defaultJanitorInterval,
			RetentionSeconds: defaultJanitorRetention,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
