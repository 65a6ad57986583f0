package config

import (
	"bytes"
	"log"
	"os"
	"path"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

[server]
  # Hostname or IP address for the diagnostics listener.
  # The engine is a device-local agent; keep this on loopback.
  # Default: "{{ .host }}"
  host = "{{ .host }}"

  # Port for the diagnostics listener.
  # Default: 7474
  port = 7474

  # Base URL for serving under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

[database]
  # Database type backing the local store.
  # Supported: "sqlite", "postgres"
  # Optional.
  # Default: "sqlite"
  type = "sqlite"

  # --- PostgreSQL Settings ---
  # Only used if database.type is set to "postgres".
  [database.postgres]
    # Default: "localhost"
    host = "localhost"

    # Default: 5432
    port = 5432

    # Default: "postgres"
    database = "postgres"

    # Default: "postgres"
    username = "postgres"

    # Default: "postgres"
    password = "postgres"

    # Options: "disable", "allow", "prefer", "require", "verify-ca", "verify-full"
    # Default: "disable"
    ssl_mode = "disable"

[logging]
  # Log file path.
  # If empty or not set, logs will be written to standard output.
  # Optional.
  # Default: ""
  path = "log/"

  # Log level.
  # Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes (MB) before it is rotated.
  # Default: 50
  max_file_size = 50

  # Maximum number of old log files to keep.
  # Default: 3
  max_backup_count = 3

[remote]
  # Base URL of the marketplace service.
  # Default: "http://localhost:8080"
  base_url = "http://localhost:8080"

  # Bearer token sent with every remote call.
  # Optional.
  # Default: ""
  token = ""

  # Per-request timeout in seconds.
  # Default: 30
  timeout_seconds = 30

[sync]
  # Run a drain-then-refresh pass shortly after startup.
  # Default: true
  sync_on_startup = true

  # Cache age after which a refresh is due.
  # Default: 60 (1 hour)
  staleness_threshold_minutes = 60

  # Page size used by the quick download strategy.
  # Default: 20
  quick_limit = 20

  # Cron schedule for the staleness-gated catalog refresh.
  # Default: "*/15 * * * *" (every 15 minutes)
  refresh_schedule = "*/15 * * * *"

  # How often a drain is attempted while pending mutations exist, in seconds.
  # Default: 300 (5 minutes)
  reconcile_interval_seconds = 300

  # Server rejections before an item is held for manual resolution.
  # Default: 5
  max_attempts = 5

  # Base delay before retrying a rejected item, in seconds. Doubles per
  # rejection up to backoff_cap_seconds.
  # Default: 30
  backoff_base_seconds = 30

  # Upper bound on the rejection retry delay, in seconds.
  # Default: 3600 (1 hour)
  backoff_cap_seconds = 3600
`

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(configPath, os.ModePerm)
		if err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		host := "127.0.0.1"

		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer func(f *os.File) {
			errClose := f.Close()
			if errClose != nil {
				log.Printf("error closing file: %q", errClose)
			}
		}(f)

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"host": host,
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:    "dev",
		ConfigPath: "",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    7474,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		Remote: domain.RemoteConfig{
			BaseURL:        "http://localhost:8080",
			Token:          "",
			TimeoutSeconds: 30,
		},
		Sync: domain.SyncConfig{
			SyncOnStartup:             true,
			StalenessThresholdMinutes: 60,
			QuickLimit:                20,
			RefreshSchedule:           "*/15 * * * *",
			ReconcileIntervalSeconds:  300,
			MaxAttempts:               5,
			BackoffBaseSeconds:        30,
			BackoffCapSeconds:         3600,
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")
	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
			// Continue to attempt reading, defaults might be used or file might exist partially
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/caravel")
		viper.AddConfigPath("$HOME/.caravel")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", viper.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, viper.ConfigFileUsed())
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		// Preserve version and configPath as they are not from the file
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded successfully!")
	})
	viper.WatchConfig()
}
