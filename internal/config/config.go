package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Local store
	DataDir string

	// Backend API
	APIURL   string
	APIToken string

	// Sync behavior
	SaveDebounce      time.Duration
	ReconnectDebounce time.Duration
	ProbeInterval     time.Duration
	EventsEnabled     bool

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	dataDir := getEnv("FIELDWORK_DATA_DIR", defaultDataDir())

	return Config{
		DataDir: dataDir,

		APIURL:   getEnv("FIELDWORK_API_URL", "http://localhost:8787"),
		APIToken: getEnv("FIELDWORK_API_TOKEN", ""),

		SaveDebounce:      getEnvDuration("FIELDWORK_SAVE_DEBOUNCE", 2*time.Second),
		ReconnectDebounce: getEnvDuration("FIELDWORK_RECONNECT_DEBOUNCE", 2*time.Second),
		ProbeInterval:     getEnvDuration("FIELDWORK_PROBE_INTERVAL", 30*time.Second),
		EventsEnabled:     getEnvBool("FIELDWORK_EVENTS", true),

		LogFile:  getEnv("FIELDWORK_LOG_FILE", filepath.Join(dataDir, "fieldwork.log")),
		LogLevel: parseLogLevel(getEnv("FIELDWORK_LOG_LEVEL", "INFO")),
	}
}

// DBPath returns the sqlite database location inside the data dir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "fieldwork.db")
}

// defaultDataDir is ~/.fieldwork, or a relative .fieldwork when the home
// directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldwork"
	}
	return filepath.Join(home, ".fieldwork")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
