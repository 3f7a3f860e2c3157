package config

const (
	defaultDataDir             = "~/.vpo"
	defaultDatabasePath        = "~/.vpo/vpo.db"
	defaultPluginDir           = "~/.vpo/plugins"
	defaultLogDir              = "~/.vpo/logs"
	defaultBackupDir           = "~/.vpo/backups"
	defaultAPIBind             = "127.0.0.1:7491"
	defaultCapabilityCache     = "~/.vpo/capabilities.json"
	defaultProbeTimeout        = 60
	defaultMetadataTimeout     = 300
	defaultRemuxTimeout        = 1800
	defaultTranscodeTimeout    = 3600
	defaultPluginHTTPTimeout   = 30
	defaultWorkers             = 2
	defaultMinFreePercent      = 5.0
	defaultQueuePollInterval   = 5
	defaultClaimTimeoutMinutes = 120
	defaultJobRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogCompressionDays  = 7
	defaultLogDeletionDays     = 60
	defaultMaxSamples          = 4
	defaultSampleDuration      = 20.0
	defaultSampleConfidence    = 0.85
	defaultIncumbentBonus      = 0.15
	defaultMinTrackSeconds     = 30.0
	defaultPruneMode           = "mark"
)

var defaultExtensions = []string{"mkv", "mp4", "avi", "mov", "m4v", "webm", "ts", "mpg"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			DatabasePath: defaultDatabasePath,
			PluginDir:    defaultPluginDir,
			LogDir:       defaultLogDir,
			BackupDir:    defaultBackupDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Tools: Tools{
			CapabilityCache:   defaultCapabilityCache,
			ProbeTimeout:      defaultProbeTimeout,
			MetadataTimeout:   defaultMetadataTimeout,
			RemuxTimeout:      defaultRemuxTimeout,
			TranscodeTimeout:  defaultTranscodeTimeout,
			PluginHTTPTimeout: defaultPluginHTTPTimeout,
		},
		Processing: Processing{
			Workers:        defaultWorkers,
			MinFreePercent: defaultMinFreePercent,
			QueuePoll:      defaultQueuePollInterval,
			ClaimTimeout:   defaultClaimTimeoutMinutes,
		},
		Jobs: Jobs{
			RetentionDays: defaultJobRetentionDays,
		},
		Logging: Logging{
			Level:           defaultLogLevel,
			Format:          defaultLogFormat,
			CompressionDays: defaultLogCompressionDays,
			DeletionDays:    defaultLogDeletionDays,
		},
		Transcription: Transcription{
			MaxSamples:          defaultMaxSamples,
			SampleDuration:      defaultSampleDuration,
			ConfidenceThreshold: defaultSampleConfidence,
			IncumbentBonus:      defaultIncumbentBonus,
			MinTrackSeconds:     defaultMinTrackSeconds,
		},
		Scanner: Scanner{
			Extensions:  append([]string(nil), defaultExtensions...),
			Incremental: true,
			PruneMode:   defaultPruneMode,
		},
	}
}
