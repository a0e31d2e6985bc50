package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Live        LiveConfig        `mapstructure:"live"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Seed        SeedConfig        `mapstructure:"seed"`
	AI          AIConfig          `mapstructure:"ai"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Storage drivers.
const (
	DriverLocal    = "local"
	DriverRemote   = "remote"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Local    LocalConfig    `mapstructure:"local"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Database DatabaseConfig `mapstructure:"database"`
}

type LocalConfig struct {
	Path  string `mapstructure:"path"`
	Debug bool   `mapstructure:"debug"`
}

// DSN returns the sqlite connection string with foreign keys and a busy
// timeout enabled.
func (l *LocalConfig) DSN() string {
	if strings.HasPrefix(l.Path, "file:") {
		return l.Path
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", l.Path)
}

type RemoteConfig struct {
	URL        string        `mapstructure:"url"`
	APIKeyEnv  string        `mapstructure:"api_key_env"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

func (r *RemoteConfig) APIKey() string {
	return os.Getenv(r.APIKeyEnv)
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	PasswordEnv    string `mapstructure:"password_env"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

func (c *DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(os.Getenv(c.PasswordEnv)), c.Host, c.Port, c.Database, sslMode)
}

// Argon2Config mirrors the argon2id cost parameters of the password hasher.
type Argon2Config struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type AuthConfig struct {
	JWTSecretEnv      string        `mapstructure:"jwt_secret_env"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	SessionFile       string        `mapstructure:"session_file"`
	Argon2            Argon2Config  `mapstructure:"argon2"`
	ProvisionExternal bool          `mapstructure:"provision_external"`
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// JWTSecret reads the signing key from the configured environment variable.
func (a *AuthConfig) JWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "OLM_JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.JWTSecret()
	return secret != devSecret && len(secret) >= 32
}

type LiveConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTables   []string      `mapstructure:"poll_tables"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type SeedConfig struct {
	AdminPasswordEnv    string `mapstructure:"admin_password_env"`
	AdminPassword       string `mapstructure:"admin_password"`
	ForcePasswordChange bool   `mapstructure:"force_password_change"`
}

// Password prefers the environment variable over the configured default.
func (s *SeedConfig) Password() string {
	if v := os.Getenv(s.AdminPasswordEnv); v != "" {
		return v
	}
	return s.AdminPassword
}

type AIConfig struct {
	APIKeyEnv string        `mapstructure:"api_key_env"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (a *AIConfig) APIKey() string {
	return os.Getenv(a.APIKeyEnv)
}

type AttachmentsConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
	MaxSize int64  `mapstructure:"max_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("storage.driver", DriverLocal)
	v.SetDefault("storage.local.path", "openlab.db")
	v.SetDefault("storage.local.debug", false)
	v.SetDefault("storage.remote.url", "")
	v.SetDefault("storage.remote.api_key_env", "OLM_REMOTE_API_KEY")
	v.SetDefault("storage.remote.timeout", "10s")
	v.SetDefault("storage.remote.retry_count", 2)
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.database", "openlab")
	v.SetDefault("storage.database.user", "openlab")
	v.SetDefault("storage.database.password_env", "OLM_DB_PASSWORD")
	v.SetDefault("storage.database.sslmode", "disable")
	v.SetDefault("storage.database.max_connections", 10)

	v.SetDefault("auth.jwt_secret_env", "OLM_JWT_SECRET")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.session_file", defaultSessionFile())
	v.SetDefault("auth.argon2.memory", 64*1024)
	v.SetDefault("auth.argon2.iterations", 3)
	v.SetDefault("auth.argon2.parallelism", 2)
	v.SetDefault("auth.argon2.salt_length", 16)
	v.SetDefault("auth.argon2.key_length", 32)
	v.SetDefault("auth.provision_external", true)

	v.SetDefault("live.poll_interval", "3s")
	v.SetDefault("live.poll_tables", []string{"messages", "users"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "openlab:invalidations")

	v.SetDefault("seed.admin_password_env", "OLM_ADMIN_PASSWORD")
	v.SetDefault("seed.admin_password", "admin123")
	v.SetDefault("seed.force_password_change", true)

	v.SetDefault("ai.api_key_env", "OLM_AI_API_KEY")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.timeout", "30s")

	v.SetDefault("attachments.dir", "attachments")
	v.SetDefault("attachments.base_url", "/files")
	v.SetDefault("attachments.max_size", 10<<20)
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".openlab-session"
	}
	return dir + "/openlab/session"
}

// Load reads the optional YAML file at path, then applies OLM_* environment
// overrides and, when flags is non-nil, command-line flags. Flag names use
// the config keys (e.g. "storage.driver").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch config.Storage.Driver {
	case DriverLocal, DriverRemote, DriverPostgres:
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}
	if config.Storage.Driver == DriverRemote && config.Storage.Remote.URL == "" {
		return nil, fmt.Errorf("storage.remote.url is required for the remote driver")
	}

	return &config, nil
}
