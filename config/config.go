package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	defaultPort              = "8080"
	defaultPollInterval      = 10 * time.Millisecond
	defaultSearchTimeout     = 5 * time.Second
	defaultBatchSize         = 200
	defaultTrackerDebounce   = 250 * time.Millisecond
	defaultRescanPerSecond   = 0.2
	defaultCatalogTimeout    = 10 * time.Second
	defaultFuzzyMinScore     = -20
	defaultExcludedDirectory = ".git"
	defaultLogLevel          = "info"
)

type Config struct {
	config *viper.Viper
}

// Load reads config/config.<env>.yaml from the project root. Environment
// variables override file values. An empty env falls back to $ENV and then
// to "local".
func Load(env string) (*Config, error) {

	if len(env) == 0 {
		if env = os.Getenv(keyEnv); len(env) == 0 {
			env = envLocal
		}
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	viperConfig.SetDefault("server.port", defaultPort)
	viperConfig.SetDefault("log.level", defaultLogLevel)
	viperConfig.SetDefault("search.poll_interval", defaultPollInterval)
	viperConfig.SetDefault("search.timeout", defaultSearchTimeout)
	viperConfig.SetDefault("search.batch_size", defaultBatchSize)
	viperConfig.SetDefault("search.fuzzy_min_score", defaultFuzzyMinScore)
	viperConfig.SetDefault("tracker.debounce", defaultTrackerDebounce)
	viperConfig.SetDefault("files.rescan_per_second", defaultRescanPerSecond)
	viperConfig.SetDefault("files.exclude", []string{defaultExcludedDirectory})
	viperConfig.SetDefault("catalog.timeout", defaultCatalogTimeout)

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

// Set overrides a value at runtime. Tests use it to point stores at
// temporary directories.
func (c *Config) Set(key string, value any) {
	c.config.Set(key, value)
}

func (c *Config) GetPort() string {
	return c.getString("PORT", "server.port")
}

func (c *Config) GetLogLevel() string {
	return c.getString("LOG_LEVEL", "log.level")
}

func (c *Config) GetKVDBPath() string {
	return c.getString("KVDB_PATH", "database.kvdb_path")
}

func (c *Config) GetIndexPath() string {
	return c.getString("INDEX_PATH", "database.index_path")
}

func (c *Config) GetStoragePath() string {
	return c.getString("STORAGE_PATH", "database.storage_path")
}

func (c *Config) GetPollInterval() time.Duration {
	return c.getDuration("SEARCH_POLL_INTERVAL", "search.poll_interval")
}

func (c *Config) GetSearchTimeout() time.Duration {
	return c.getDuration("SEARCH_TIMEOUT", "search.timeout")
}

func (c *Config) GetStrictFilters() bool {
	if c.config.IsSet("SEARCH_STRICT_FILTERS") {
		return c.config.GetBool("SEARCH_STRICT_FILTERS")
	}
	return c.config.GetBool("search.strict_filters")
}

func (c *Config) GetFuzzyMinScore() int64 {
	if c.config.IsSet("SEARCH_FUZZY_MIN_SCORE") {
		return c.config.GetInt64("SEARCH_FUZZY_MIN_SCORE")
	}
	return c.config.GetInt64("search.fuzzy_min_score")
}

func (c *Config) GetBatchSize() int {
	size := c.config.GetInt("SEARCH_BATCH_SIZE")
	if size <= 0 {
		size = c.config.GetInt("search.batch_size")
	}
	return size
}

func (c *Config) GetTrackerDebounce() time.Duration {
	return c.getDuration("TRACKER_DEBOUNCE", "tracker.debounce")
}

func (c *Config) GetTrackerWatch() bool {
	if c.config.IsSet("TRACKER_WATCH") {
		return c.config.GetBool("TRACKER_WATCH")
	}
	return c.config.GetBool("tracker.watch")
}

func (c *Config) GetFileRoots() []string {
	return c.getStrings("FILES_ROOTS", "files.roots")
}

func (c *Config) GetExcludedFolders() []string {
	return c.getStrings("FILES_EXCLUDE", "files.exclude")
}

func (c *Config) GetRescanPerSecond() float64 {
	perSecond := c.config.GetFloat64("FILES_RESCAN_PER_SECOND")
	if perSecond <= 0 {
		perSecond = c.config.GetFloat64("files.rescan_per_second")
	}
	return perSecond
}

func (c *Config) GetScenePath() string {
	return c.getString("OBJECTS_SCENE_PATH", "objects.scene_path")
}

func (c *Config) GetCatalogURL() string {
	return c.getString("CATALOG_URL", "catalog.url")
}

func (c *Config) GetCatalogTimeout() time.Duration {
	return c.getDuration("CATALOG_TIMEOUT", "catalog.timeout")
}

func (c *Config) getString(envKey, key string) string {
	value := c.config.GetString(envKey)
	if len(value) == 0 {
		value = c.config.GetString(key)
	}

	return value
}

func (c *Config) getDuration(envKey, key string) time.Duration {
	value := c.config.GetDuration(envKey)
	if value <= 0 {
		value = c.config.GetDuration(key)
	}

	return value
}

// getStrings reads a list from the file, or a comma separated list from the
// environment.
func (c *Config) getStrings(envKey, key string) []string {
	if raw := c.config.GetString(envKey); len(raw) > 0 {
		var values []string
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		return values
	}

	return c.config.GetStringSlice(key)
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
