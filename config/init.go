package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"phoneprov/internal/retention"
)

// Конечная структура конфигурации сервиса провижининга.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто — только stdout
	} `mapstructure:"logs"`

	Database struct {
		Driver string `mapstructure:"driver"` // postgres | mysql | sqlite
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Sessions struct {
		Backend       string        `mapstructure:"backend"` // memory | redis
		RedisAddr     string        `mapstructure:"redis_addr"`
		RedisPassword string        `mapstructure:"redis_password"`
		RedisDB       int           `mapstructure:"redis_db"`
		TTL           time.Duration `mapstructure:"ttl"`
		CookieName    string        `mapstructure:"cookie_name"`
	} `mapstructure:"sessions"`

	Provisioning struct {
		BaseURL         string        `mapstructure:"base_url"` // https://prov.example.com; пусто — из Host запроса
		Username        string        `mapstructure:"username"`
		Password        string        `mapstructure:"password"`      // пусто (и нет hash) — стадии открыты
		PasswordHash    string        `mapstructure:"password_hash"` // bcrypt
		CertDir         string        `mapstructure:"cert_dir"`
		PKIAutogenerate bool          `mapstructure:"pki_autogenerate"`
		PKICommonName   string        `mapstructure:"pki_common_name"`
		PKITTL          time.Duration `mapstructure:"pki_ttl"`
	} `mapstructure:"provisioning"`

	Wizard struct {
		ActorHeader string   `mapstructure:"actor_header"` // заголовок от доверенного прокси
		Managers    []string `mapstructure:"managers"`     // пусто — любой аутентифицированный
	} `mapstructure:"wizard"`

	Retention struct {
		Schedule     string `mapstructure:"schedule"` // cron; пусто — выключено
		KeepVersions int    `mapstructure:"keep_versions"`
		LogDays      int    `mapstructure:"log_days"`
	} `mapstructure:"retention"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"metrics"`
}

// Load читает конфиг из env/файла с дефолтами.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "phoneprov"))
		}
		v.AddConfigPath("/etc/phoneprov")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")

	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.redis_addr", "127.0.0.1:6379")
	v.SetDefault("sessions.redis_db", 0)
	v.SetDefault("sessions.ttl", "12h")
	v.SetDefault("sessions.cookie_name", "phoneprov_wizard")

	v.SetDefault("provisioning.base_url", "")
	v.SetDefault("provisioning.cert_dir", "/var/lib/phoneprov/certs")
	v.SetDefault("provisioning.pki_autogenerate", false)
	v.SetDefault("provisioning.pki_common_name", "phoneprov")
	v.SetDefault("provisioning.pki_ttl", "87600h")

	v.SetDefault("wizard.actor_header", "X-Remote-User")
	v.SetDefault("wizard.managers", []string{})

	v.SetDefault("retention.schedule", "")
	v.SetDefault("retention.keep_versions", 20)
	v.SetDefault("retention.log_days", 90)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres|mysql|sqlite, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn must not be empty")
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Sessions.RedisAddr) == "" {
			return errors.New("sessions.redis_addr must be set for redis backend")
		}
	default:
		return fmt.Errorf("sessions.backend must be memory|redis, got %q", c.Sessions.Backend)
	}
	if c.Sessions.TTL <= 0 {
		return errors.New("sessions.ttl must be positive")
	}
	if strings.TrimSpace(c.Wizard.ActorHeader) == "" {
		return errors.New("wizard.actor_header must not be empty")
	}
	if c.Provisioning.PKIAutogenerate && strings.TrimSpace(c.Provisioning.CertDir) == "" {
		return errors.New("provisioning.cert_dir is required when pki_autogenerate is on")
	}
	if s := strings.TrimSpace(c.Retention.Schedule); s != "" {
		if _, err := retention.ParseSchedule(s); err != nil {
			return fmt.Errorf("retention.schedule: %w", err)
		}
		if c.Retention.KeepVersions < 1 {
			return errors.New("retention.keep_versions must be >= 1")
		}
	}
	return nil
}
