package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Apply    ApplyConfig    `mapstructure:"apply"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// InternalSecret 保护控制接口；popup 通过 Header 携带。
	InternalSecret string `mapstructure:"internal_secret"`
	// AllowedOrigins 约束 WebSocket 的 Origin 校验，空表示同源。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ApplyConfig 是投递流程自身的配置。
type ApplyConfig struct {
	// BaseURL 是目标站点根地址，职位页由 jobId 拼出。
	BaseURL string `mapstructure:"base_url"`
	// JobsFile 是兜底的职位清单（easyapply_today.json）。
	JobsFile string `mapstructure:"jobs_file"`
	// DirectoryFile 是候选人/对接人目录的兜底文件。
	DirectoryFile string `mapstructure:"directory_file"`
	// ExportDir 是运行导出文档的本地落盘目录。
	ExportDir string `mapstructure:"export_dir"`
	// Answers 是启发式填表的默认答案，属于投递策略。
	Answers AnswersConfig `mapstructure:"answers"`
}

// AnswersConfig 对应 navigator.Answers 的配置键。
type AnswersConfig struct {
	Sponsorship     string `mapstructure:"sponsorship"`
	Authorized      string `mapstructure:"authorized"`
	Citizen         string `mapstructure:"citizen"`
	Veteran         string `mapstructure:"veteran"`
	Disability      string `mapstructure:"disability"`
	Gender          string `mapstructure:"gender"`
	Proficiency     string `mapstructure:"proficiency"`
	ExperienceYears string `mapstructure:"experience_years"`
	Salary          string `mapstructure:"salary"`
	NoticePeriod    string `mapstructure:"notice_period"`
}

// RelayConfig 指向接收活动行的中继服务。
type RelayConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// APIKey 为明文密钥；APIKeyEncrypted + Passphrase 为加密存放的替代。
	APIKey          string `mapstructure:"api_key"`
	APIKeyEncrypted string `mapstructure:"api_key_encrypted"`
	Passphrase      string `mapstructure:"passphrase"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr 返回 host:port 形式的 Redis 地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "easyapply")
	v.SetDefault("database.user", "easyapply")
	v.SetDefault("database.password", "easyapply")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "apply-exports")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("apply.base_url", "https://www.linkedin.com")
	v.SetDefault("apply.jobs_file", "config/easyapply_today.json")
	v.SetDefault("apply.directory_file", "config/config.json")
	v.SetDefault("apply.export_dir", "exports")
	v.SetDefault("apply.answers.sponsorship", "No")
	v.SetDefault("apply.answers.authorized", "Yes")
	v.SetDefault("apply.answers.citizen", "Yes")
	v.SetDefault("apply.answers.veteran", "No")
	v.SetDefault("apply.answers.disability", "No")
	v.SetDefault("apply.answers.gender", "Male")
	v.SetDefault("apply.answers.proficiency", "Professional")
	v.SetDefault("apply.answers.experience_years", "15")
	v.SetDefault("apply.answers.salary", "50000")
	v.SetDefault("apply.answers.notice_period", "0")
	v.SetDefault("relay.base_url", "http://localhost:3000")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.internal_secret":            "INTERNAL_API_SECRET",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"apply.base_url":                 "APPLY_BASE_URL",
		"apply.jobs_file":                "APPLY_JOBS_FILE",
		"apply.directory_file":           "APPLY_DIRECTORY_FILE",
		"apply.export_dir":               "APPLY_EXPORT_DIR",
		"apply.answers.sponsorship":      "APPLY_ANSWER_SPONSORSHIP",
		"apply.answers.authorized":       "APPLY_ANSWER_AUTHORIZED",
		"apply.answers.citizen":          "APPLY_ANSWER_CITIZEN",
		"apply.answers.veteran":          "APPLY_ANSWER_VETERAN",
		"apply.answers.disability":       "APPLY_ANSWER_DISABILITY",
		"apply.answers.gender":           "APPLY_ANSWER_GENDER",
		"apply.answers.proficiency":      "APPLY_ANSWER_PROFICIENCY",
		"apply.answers.experience_years": "APPLY_ANSWER_EXPERIENCE_YEARS",
		"apply.answers.salary":           "APPLY_ANSWER_SALARY",
		"apply.answers.notice_period":    "APPLY_ANSWER_NOTICE_PERIOD",
		"relay.base_url":                 "RELAY_BASE_URL",
		"relay.api_key":                  "RELAY_API_KEY",
		"relay.api_key_encrypted":        "RELAY_API_KEY_ENCRYPTED",
		"relay.passphrase":               "RELAY_PASSPHRASE",
	}
	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", cfg.API.Port)
	}
	if cfg.Apply.BaseURL == "" {
		return errors.New("apply base url is required")
	}
	if cfg.Relay.APIKey != "" && cfg.Relay.APIKeyEncrypted != "" {
		return errors.New("relay api_key and api_key_encrypted are mutually exclusive")
	}
	if cfg.Relay.APIKeyEncrypted != "" && cfg.Relay.Passphrase == "" {
		return errors.New("relay passphrase required to decrypt api key")
	}
	return nil
}
