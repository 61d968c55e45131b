package config

const (
	defaultConfigPath         = "~/.config/mediaconv/config.toml"
	projectConfigName         = "mediaconv.toml"
	defaultOutputDir          = "~/.local/share/mediaconv/downloads"
	defaultDataDir            = "~/.local/share/mediaconv"
	defaultLogDir             = "~/.local/share/mediaconv/logs"
	defaultBind               = "127.0.0.1:8000"
	defaultDownloadPrefix     = "/downloads"
	defaultShutdownTimeout    = 30
	defaultWorkers            = 2
	defaultQueueSize          = 16
	defaultFetchTimeout       = 300
	defaultTranscodeTimeout   = 900
	defaultYTDLPBinary        = "yt-dlp"
	defaultVideoMaxHeight     = 480
	defaultFFmpegBinary       = "ffmpeg"
	defaultAudioBitrate       = "128k"
	defaultVideoPreset        = "ultrafast"
	defaultVideoCRF           = 32
	defaultTranscodeThreads   = 1
	defaultRetentionMinutes   = 30
	defaultSweepMinutes       = 10
	defaultPingMinutes        = 5
	defaultActivityMinutes    = 15
	defaultPingRequestTimeout = 10
	defaultCacheKeyPrefix     = "mediaconv:"
	defaultMirrorRegion       = "us-east-1"
	defaultMirrorPrefix       = "downloads/"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 14
)

// DefaultDownloadPrefix is the public path outputs are served under.
const DefaultDownloadPrefix = defaultDownloadPrefix

// History drivers.
const (
	HistoryDriverSQLite   = "sqlite"
	HistoryDriverPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
		},
		Server: Server{
			Bind:            defaultBind,
			DownloadPrefix:  defaultDownloadPrefix,
			ShutdownTimeout: defaultShutdownTimeout,
			CORSOrigins:     []string{"*"},
		},
		Conversion: Conversion{
			Workers:          defaultWorkers,
			QueueSize:        defaultQueueSize,
			FetchTimeout:     defaultFetchTimeout,
			TranscodeTimeout: defaultTranscodeTimeout,
		},
		Fetcher: Fetcher{
			Binary:         defaultYTDLPBinary,
			VideoMaxHeight: defaultVideoMaxHeight,
		},
		Transcoder: Transcoder{
			Binary:       defaultFFmpegBinary,
			AudioBitrate: defaultAudioBitrate,
			VideoPreset:  defaultVideoPreset,
			VideoCRF:     defaultVideoCRF,
			Threads:      defaultTranscodeThreads,
		},
		Retention: Retention{
			MaxAgeMinutes:        defaultRetentionMinutes,
			SweepIntervalMinutes: defaultSweepMinutes,
		},
		KeepAlive: KeepAlive{
			Enabled:               true,
			IntervalMinutes:       defaultPingMinutes,
			ActivityWindowMinutes: defaultActivityMinutes,
			RequestTimeout:        defaultPingRequestTimeout,
		},
		History: History{
			Enabled: true,
			Driver:  HistoryDriverSQLite,
		},
		Cache: Cache{
			KeyPrefix: defaultCacheKeyPrefix,
		},
		Mirror: Mirror{
			Region: defaultMirrorRegion,
			Prefix: defaultMirrorPrefix,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
