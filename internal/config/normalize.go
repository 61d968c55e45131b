package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeConversion()
	if err := c.normalizeFetcher(); err != nil {
		return err
	}
	c.normalizeTranscoder()
	c.normalizeKeepAlive()
	c.normalizeHistory()
	c.normalizeCache()
	c.normalizeMirror()
	c.normalizeLogging()
	return nil
}

// applyEnv overlays environment variables. Hosting platforms configure the
// service through the environment, so these win over file values.
func (c *Config) applyEnv() {
	if value, ok := lookupEnv("MEDIACONV_OUTPUT_DIR"); ok {
		c.Paths.OutputDir = value
	}
	if value, ok := lookupEnv("MEDIACONV_DATA_DIR"); ok {
		c.Paths.DataDir = value
	}
	if value, ok := lookupEnv("MEDIACONV_API_BIND"); ok {
		c.Server.Bind = value
	} else if port, ok := lookupEnv("PORT"); ok {
		c.Server.Bind = net.JoinHostPort("0.0.0.0", port)
	}
	if value, ok := lookupEnv("MEDIACONV_KEEPALIVE_URL"); ok {
		c.KeepAlive.URL = value
	}
	if value, ok := lookupEnv("MEDIACONV_COOKIES_FILE"); ok {
		c.Fetcher.CookiesFile = value
	}
	if value, ok := lookupEnv("DATABASE_URL"); ok && strings.TrimSpace(c.History.DSN) == "" {
		c.History.Driver = HistoryDriverPostgres
		c.History.DSN = value
	}
	if value, ok := lookupEnv("REDIS_ADDR"); ok && strings.TrimSpace(c.Cache.RedisAddr) == "" {
		c.Cache.RedisAddr = value
		c.Cache.Enabled = true
	}
	if c.Cache.RedisPassword == "" {
		if value, ok := lookupEnv("REDIS_PASSWORD"); ok {
			c.Cache.RedisPassword = value
		}
	}
	if c.Mirror.AccessKey == "" {
		c.Mirror.AccessKey = envWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID")
	}
	if c.Mirror.SecretKey == "" {
		c.Mirror.SecretKey = envWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY")
	}
	if value := envWithFallback("S3_REGION", "AWS_DEFAULT_REGION"); value != "" {
		c.Mirror.Region = value
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	prefix := strings.TrimSpace(c.Server.DownloadPrefix)
	if prefix == "" {
		prefix = defaultDownloadPrefix
	}
	c.Server.DownloadPrefix = "/" + strings.Trim(prefix, "/")
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	origins := make([]string, 0, len(c.Server.CORSOrigins))
	for _, origin := range c.Server.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.CORSOrigins = origins
}

func (c *Config) normalizeConversion() {
	if c.Conversion.Workers <= 0 {
		c.Conversion.Workers = defaultWorkers
	}
	if c.Conversion.QueueSize < 0 {
		c.Conversion.QueueSize = 0
	}
	if c.Conversion.FetchTimeout <= 0 {
		c.Conversion.FetchTimeout = defaultFetchTimeout
	}
	if c.Conversion.TranscodeTimeout <= 0 {
		c.Conversion.TranscodeTimeout = defaultTranscodeTimeout
	}
}

func (c *Config) normalizeFetcher() error {
	c.Fetcher.Binary = strings.TrimSpace(c.Fetcher.Binary)
	if c.Fetcher.Binary == "" {
		c.Fetcher.Binary = defaultYTDLPBinary
	}
	c.Fetcher.CookiesFile = strings.TrimSpace(c.Fetcher.CookiesFile)
	if c.Fetcher.CookiesFile != "" {
		var err error
		if c.Fetcher.CookiesFile, err = expandPath(c.Fetcher.CookiesFile); err != nil {
			return fmt.Errorf("fetcher.cookies_file: %w", err)
		}
	}
	if c.Fetcher.VideoMaxHeight < 0 {
		c.Fetcher.VideoMaxHeight = 0
	}
	return nil
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.Binary = strings.TrimSpace(c.Transcoder.Binary)
	if c.Transcoder.Binary == "" {
		c.Transcoder.Binary = defaultFFmpegBinary
	}
	c.Transcoder.AudioBitrate = strings.TrimSpace(c.Transcoder.AudioBitrate)
	if c.Transcoder.AudioBitrate == "" {
		c.Transcoder.AudioBitrate = defaultAudioBitrate
	}
	c.Transcoder.VideoPreset = strings.ToLower(strings.TrimSpace(c.Transcoder.VideoPreset))
	if c.Transcoder.VideoPreset == "" {
		c.Transcoder.VideoPreset = defaultVideoPreset
	}
	if c.Transcoder.Threads < 0 {
		c.Transcoder.Threads = 0
	}
}

func (c *Config) normalizeKeepAlive() {
	c.KeepAlive.URL = strings.TrimSpace(c.KeepAlive.URL)
	if c.KeepAlive.URL == "" {
		c.KeepAlive.URL = selfURL(c.Server.Bind)
	}
	if c.KeepAlive.IntervalMinutes <= 0 {
		c.KeepAlive.IntervalMinutes = defaultPingMinutes
	}
	if c.KeepAlive.ActivityWindowMinutes <= 0 {
		c.KeepAlive.ActivityWindowMinutes = defaultActivityMinutes
	}
	if c.KeepAlive.RequestTimeout <= 0 {
		c.KeepAlive.RequestTimeout = defaultPingRequestTimeout
	}
}

func (c *Config) normalizeHistory() {
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	switch c.History.Driver {
	case "", "sqlite3":
		c.History.Driver = HistoryDriverSQLite
	case "postgresql", "pg":
		c.History.Driver = HistoryDriverPostgres
	}
	c.History.DSN = strings.TrimSpace(c.History.DSN)
}

func (c *Config) normalizeCache() {
	c.Cache.RedisAddr = strings.TrimSpace(c.Cache.RedisAddr)
	if strings.TrimSpace(c.Cache.KeyPrefix) == "" {
		c.Cache.KeyPrefix = defaultCacheKeyPrefix
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.Bucket = strings.TrimSpace(c.Mirror.Bucket)
	c.Mirror.Region = strings.TrimSpace(c.Mirror.Region)
	if c.Mirror.Region == "" {
		c.Mirror.Region = defaultMirrorRegion
	}
	c.Mirror.Endpoint = strings.TrimSpace(c.Mirror.Endpoint)
	c.Mirror.Prefix = strings.TrimLeft(strings.TrimSpace(c.Mirror.Prefix), "/")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// selfURL derives a loopback URL for the server root from its bind address.
func selfURL(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func envWithFallback(primaryKey, secondaryKey string) string {
	if value, ok := lookupEnv(primaryKey); ok {
		return value
	}
	if value, ok := lookupEnv(secondaryKey); ok {
		return value
	}
	return ""
}
