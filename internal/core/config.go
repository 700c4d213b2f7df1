package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to binpatch.
type Config struct {
	// Path to a YAML patch table. Blank uses the table compiled into the binary.
	PatchTable string `mapstructure:"patch_table"`
	// Exact size in bytes the target must have. Zero uses the table's expected_size.
	ExpectedSize int64 `mapstructure:"expected_size"`
	// Appended to the target path to name the backup copy.
	BackupSuffix string `mapstructure:"backup_suffix"`
	// Exit with an error when any individual patch could not be written.
	Strict bool `mapstructure:"strict"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stderr.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Include the file and line number of the log call.
		IncludeCaller bool `mapstructure:"include_caller"`
	} `mapstructure:"logging"`

	History struct {
		// Record every patch run in a database.
		Enabled bool `mapstructure:"enabled"`
		// Options: sqlite, postgres
		Engine string `mapstructure:"engine"`
		// SQLite database file, relative to the config directory.
		Filename string `mapstructure:"filename"`
		// Connection settings for the postgres engine.
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"history"`

	configDir string
}

const envVarPrefix = "BINPATCH"

func setDefaults(v *viper.Viper) {
	v.SetDefault("patch_table", "")
	v.SetDefault("expected_size", 0)
	v.SetDefault("backup_suffix", ".backup")
	v.SetDefault("strict", false)
	v.SetDefault("logging.log_file_path", "")
	v.SetDefault("logging.log_level", "info")
	v.SetDefault("logging.include_caller", false)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.engine", "sqlite")
	v.SetDefault("history.filename", "binpatch.db")
	v.SetDefault("history.host", "localhost")
	v.SetDefault("history.port", 5432)
	v.SetDefault("history.name", "binpatch")
	v.SetDefault("history.username", "")
	v.SetDefault("history.password", "")
	v.SetDefault("history.sslmode", "disable")
}

// LoadConfig reads config.yaml from configPath, if present, and overlays any
// BINPATCH_* environment variables. A missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = "."
	}
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, logging.log_level can be set using: <envVarPrefix>_LOGGING_LOG_LEVEL
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{configDir: configPath}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	if config.ExpectedSize < 0 {
		return nil, fmt.Errorf("expected_size must not be negative, got %d", config.ExpectedSize)
	}
	return config, nil
}

// QualifiedPath returns name joined to the config directory unless name is
// already absolute.
func (c *Config) QualifiedPath(name string) string {
	if name == "" || filepath.IsAbs(name) || c.configDir == "" {
		return name
	}
	return filepath.Join(c.configDir, name)
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a postgres connection string for the history database.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.History.Host,
		c.History.Port,
		c.History.Name,
		c.History.Username,
		c.History.Password,
		c.History.SSLMode,
	)
}
