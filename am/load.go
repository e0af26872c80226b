package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/gridpulse/errors"
)

// EnvPrefix prefixes every environment override (GRIDPULSE_EXECUTOR_DRY_RUN).
const EnvPrefix = "GRIDPULSE"

// Project config file names, searched upward from the working directory.
var projectConfigNames = []string{"gridpulse.toml", "am.toml"}

var globalConfig *Config
var viperInstance *viper.Viper
var explicitConfig string

// ConfigSources records, per flattened key, the file that last set it during
// loading. Keys absent here come from defaults or the environment.
var ConfigSources = map[string]SourceInfo{}

// SetConfigFile makes path the highest-precedence config file (--config).
// It resets any cached configuration.
func SetConfigFile(path string) {
	explicitConfig = path
	Reset()
}

// Load reads the gridpulse configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the
// defaults, ignoring every other source.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	// Merge configs in precedence order: system -> user -> project -> explicit -> env vars
	if err := mergeConfigFiles(v); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// ConfigFile pairs a candidate file with the source it represents
type ConfigFile struct {
	Path   string
	Source ConfigSource
}

// ConfigPaths lists the candidate config files in merge order. Files that do
// not exist are included; callers check.
func ConfigPaths() []ConfigFile {
	paths := []ConfigFile{{"/etc/gridpulse/config.toml", SourceSystem}}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, ConfigFile{filepath.Join(homeDir, ".gridpulse", "am.toml"), SourceUser})
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, ConfigFile{project, SourceProject})
	}
	if explicitConfig != "" {
		paths = append(paths, ConfigFile{explicitConfig, SourceExplicit})
	}
	return paths
}

// findProjectConfig searches for gridpulse.toml or am.toml by walking up the
// directory tree. Returns the first file found, or empty string if none.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		for _, name := range projectConfigNames {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// mergeConfigFiles merges every existing config file into v. Merging keeps
// environment variables on top. A malformed system, user or project file is
// skipped; a malformed explicit file is an error.
func mergeConfigFiles(v *viper.Viper) error {
	for _, cp := range ConfigPaths() {
		if _, err := os.Stat(cp.Path); err != nil {
			if cp.Source == SourceExplicit {
				return errors.Wrapf(err, "config file %s", cp.Path)
			}
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(cp.Path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			if cp.Source == SourceExplicit {
				return errors.Wrapf(err, "failed to read config file %s", cp.Path)
			}
			continue
		}

		settings := tempViper.AllSettings()
		if err := v.MergeConfigMap(settings); err != nil {
			return errors.Wrapf(err, "failed to merge config file %s", cp.Path)
		}
		trackSources(settings, "", SourceInfo{Source: cp.Source, Path: cp.Path})
	}
	return nil
}

// trackSources records info for every leaf key of settings
func trackSources(settings map[string]interface{}, prefix string, info SourceInfo) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			trackSources(nested, fullKey, info)
			continue
		}
		ConfigSources[fullKey] = info
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	v, err := initViper()
	if err != nil {
		return nil
	}
	return v.Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	v, err := initViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}
