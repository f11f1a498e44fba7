package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAgentVersion = "1.0.2"
	DefaultMetadataURL  = "https://app.webmaster-monitor.com/api/plugin/info"
	DefaultAPIPrefix    = "/wp-json/webmaster-monitor/v1"
)

type Config struct {
	Port        int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string
	APIPrefix   string

	AgentVersion  string
	AgentSlug     string
	AgentBasename string
	HostName      string
	SiteURL       string
	HomeURL       string
	SiteID        int64

	MetadataURL    string
	UpdateCacheTTL time.Duration
	HTTPTimeout    time.Duration

	ContentRoot string
	CoreDir     string
	UploadsDir  string
	PluginsDir  string
	ThemesDir   string
	StagingDir  string

	DatabaseDriver string
	DatabaseDSN    string
	TablePrefix    string

	SettingsBackend string
	SettingsFile    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	Locale    string
	LogLevel  string
	LogFormat string

	CronDisabled bool
	CronInterval time.Duration

	AuthFailureLimit  int
	AuthFailureWindow time.Duration

	// UpdateRateLimit caps install and forced-check requests per client IP
	// within UpdateRateWindow.
	UpdateRateLimit  int
	UpdateRateWindow time.Duration
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// LoadConfig reads the process environment. When WM_CONFIG_FILE is set, the
// YAML file it names supplies values for keys the environment leaves empty.
func LoadConfig() (Config, error) {
	var env Env = osEnv{}
	if path := env.Getenv("WM_CONFIG_FILE"); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		env = Layered(env, file)
	}
	return LoadConfigFromEnv(env)
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:              3000,
		GinMode:           "release",
		APIPrefix:         DefaultAPIPrefix,
		AgentVersion:      DefaultAgentVersion,
		AgentSlug:         "webmaster-monitor",
		HostName:          "WordPress",
		SiteID:            1,
		MetadataURL:       DefaultMetadataURL,
		UpdateCacheTTL:    12 * time.Hour,
		HTTPTimeout:       15 * time.Second,
		ContentRoot:       ".",
		DatabaseDriver:    "sqlite",
		TablePrefix:       "wp_",
		SettingsBackend:   "file",
		Locale:            "en",
		LogLevel:          "info",
		LogFormat:         "json",
		CronInterval:      12 * time.Hour,
		AuthFailureLimit:  20,
		AuthFailureWindow: time.Minute,
		UpdateRateLimit:   10,
		UpdateRateWindow:  time.Minute,
	}

	var err error
	if cfg.Port, err = intVar(env, "PORT", cfg.Port); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT")
	}

	stringVar(env, "GIN_MODE", &cfg.GinMode)
	stringVar(env, "TLS_CERT_FILE", &cfg.TLSCertFile)
	stringVar(env, "TLS_KEY_FILE", &cfg.TLSKeyFile)
	stringVar(env, "WM_API_PREFIX", &cfg.APIPrefix)
	cfg.APIPrefix = "/" + strings.Trim(cfg.APIPrefix, "/")

	stringVar(env, "WM_AGENT_VERSION", &cfg.AgentVersion)
	stringVar(env, "WM_AGENT_SLUG", &cfg.AgentSlug)
	cfg.AgentBasename = cfg.AgentSlug + "/" + cfg.AgentSlug + ".php"
	stringVar(env, "WM_AGENT_BASENAME", &cfg.AgentBasename)
	stringVar(env, "WM_HOST_NAME", &cfg.HostName)
	stringVar(env, "WM_SITE_URL", &cfg.SiteURL)
	cfg.HomeURL = cfg.SiteURL
	stringVar(env, "WM_HOME_URL", &cfg.HomeURL)

	siteID, err := intVar(env, "WM_SITE_ID", int(cfg.SiteID))
	if err != nil || siteID <= 0 {
		return Config{}, fmt.Errorf("invalid WM_SITE_ID")
	}
	cfg.SiteID = int64(siteID)

	stringVar(env, "WM_METADATA_URL", &cfg.MetadataURL)
	if cfg.UpdateCacheTTL, err = secondsVar(env, "WM_UPDATE_CACHE_TTL_SECONDS", cfg.UpdateCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = secondsVar(env, "WM_HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}

	stringVar(env, "WM_CONTENT_ROOT", &cfg.ContentRoot)
	cfg.CoreDir = cfg.ContentRoot
	stringVar(env, "WM_CORE_DIR", &cfg.CoreDir)
	cfg.UploadsDir = filepath.Join(cfg.ContentRoot, "wp-content", "uploads")
	cfg.PluginsDir = filepath.Join(cfg.ContentRoot, "wp-content", "plugins")
	cfg.ThemesDir = filepath.Join(cfg.ContentRoot, "wp-content", "themes")
	cfg.StagingDir = filepath.Join(cfg.ContentRoot, "wp-content", "upgrade")
	stringVar(env, "WM_UPLOADS_DIR", &cfg.UploadsDir)
	stringVar(env, "WM_PLUGINS_DIR", &cfg.PluginsDir)
	stringVar(env, "WM_THEMES_DIR", &cfg.ThemesDir)
	stringVar(env, "WM_STAGING_DIR", &cfg.StagingDir)

	stringVar(env, "WM_DATABASE_DRIVER", &cfg.DatabaseDriver)
	switch cfg.DatabaseDriver {
	case "sqlite":
		cfg.DatabaseDSN = filepath.Join(cfg.ContentRoot, "webmaster-monitor.db")
	case "pgx":
	default:
		return Config{}, fmt.Errorf("invalid WM_DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	stringVar(env, "WM_DATABASE_DSN", &cfg.DatabaseDSN)
	if cfg.DatabaseDSN == "" {
		return Config{}, fmt.Errorf("WM_DATABASE_DSN is required for driver %s", cfg.DatabaseDriver)
	}
	stringVar(env, "WM_TABLE_PREFIX", &cfg.TablePrefix)

	stringVar(env, "WM_SETTINGS_BACKEND", &cfg.SettingsBackend)
	cfg.SettingsFile = filepath.Join(cfg.ContentRoot, "webmaster-monitor-settings.json")
	stringVar(env, "WM_SETTINGS_FILE", &cfg.SettingsFile)
	stringVar(env, "WM_REDIS_ADDR", &cfg.RedisAddr)
	stringVar(env, "WM_REDIS_PASSWORD", &cfg.RedisPassword)
	if cfg.RedisDB, err = intVar(env, "WM_REDIS_DB", 0); err != nil || cfg.RedisDB < 0 {
		return Config{}, fmt.Errorf("invalid WM_REDIS_DB")
	}
	switch cfg.SettingsBackend {
	case "file":
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("WM_REDIS_ADDR is required for the redis settings backend")
		}
	default:
		return Config{}, fmt.Errorf("invalid WM_SETTINGS_BACKEND %q", cfg.SettingsBackend)
	}

	stringVar(env, "WM_LOCALE", &cfg.Locale)
	stringVar(env, "LOG_LEVEL", &cfg.LogLevel)
	stringVar(env, "LOG_FORMAT", &cfg.LogFormat)

	if raw := env.Getenv("WM_DISABLE_CRON"); raw != "" {
		disabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WM_DISABLE_CRON")
		}
		cfg.CronDisabled = disabled
	}
	if cfg.CronInterval, err = secondsVar(env, "WM_CRON_INTERVAL_SECONDS", cfg.CronInterval); err != nil {
		return Config{}, err
	}

	if cfg.AuthFailureLimit, err = intVar(env, "WM_AUTH_FAILURE_LIMIT", cfg.AuthFailureLimit); err != nil || cfg.AuthFailureLimit <= 0 {
		return Config{}, fmt.Errorf("invalid WM_AUTH_FAILURE_LIMIT")
	}
	if cfg.AuthFailureWindow, err = secondsVar(env, "WM_AUTH_FAILURE_WINDOW_SECONDS", cfg.AuthFailureWindow); err != nil {
		return Config{}, err
	}
	if cfg.UpdateRateLimit, err = intVar(env, "WM_UPDATE_RATE_LIMIT", cfg.UpdateRateLimit); err != nil || cfg.UpdateRateLimit <= 0 {
		return Config{}, fmt.Errorf("invalid WM_UPDATE_RATE_LIMIT")
	}
	if cfg.UpdateRateWindow, err = secondsVar(env, "WM_UPDATE_RATE_WINDOW_SECONDS", cfg.UpdateRateWindow); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func stringVar(env Env, key string, dst *string) {
	if raw := env.Getenv(key); raw != "" {
		*dst = raw
	}
}

func intVar(env Env, key string, def int) (int, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func secondsVar(env Env, key string, def time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(seconds) * time.Second, nil
}
