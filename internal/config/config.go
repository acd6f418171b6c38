// Package config
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const EnvPrefix = "GITDEPLOY_"

const (
	BackupStoreFile   = "file"
	BackupStoreSQLite = "sqlite"
)

const BackupFileName = ".git-deploy-backup"

var DefaultGitLabRanges = []string{
	"172.65.192.0/18",
	"185.199.108.0/22",
	"192.30.252.0/22",
	"140.82.112.0/20",
	"143.55.64.0/20",
	"34.74.90.64/26",
	"34.74.226.0/26",
}

type Config struct {
	Address   string
	LogLevel  string
	LogFormat string

	JWTSecret     string `validate:"required"`
	WebhookSecret string `validate:"required"`
	GitBinary     string `validate:"required"`
	ProjectRoot   string `validate:"required"`
	Timezone      string
	Location      *time.Location

	Telegram   TelegramConfig
	JWT        JWTConfig
	Deployment DeploymentConfig
	Security   SecurityConfig

	BackupStore    string `validate:"oneof=file sqlite"`
	HistoryDB      string
	AllowedOrigins []string
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// Active reports whether notifications can actually be delivered.
func (t TelegramConfig) Active() bool {
	return t.Enabled && t.BotToken != "" && t.ChatID != ""
}

type JWTConfig struct {
	Algorithm  string `validate:"oneof=HS256 HS384 HS512"`
	Issuer     string `validate:"required"`
	Audience   string `validate:"required"`
	Expiration time.Duration
	Leeway     time.Duration
}

type DeploymentConfig struct {
	Enabled         bool
	AutoComposer    bool
	BackupCommits   bool
	ClearCache      bool
	FixPermissions  bool
	ExecutableFiles []string
	CustomScript    string
	MaxBackupAge    time.Duration
	StashExcludes   []string
	Dependency      DependencyManagerConfig
}

type DependencyManagerConfig struct {
	Name        string
	Manifests   []string
	SearchPaths []string
	PathNames   []string
	InstallArgs []string
}

type SecurityConfig struct {
	ValidateGitLabIPs bool
	AllowedIPs        []string
}

type LookupFunc func(key string) (string, bool)

// Load reads the optional dotenv file, resolves every setting once and
// validates the result.
func Load(envFile string, log logger.Logger) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to load %s: %v", domain.ErrConfig, envFile, err)
		}
	} else {
		godotenv.Load()
	}

	cfg := Resolve(os.LookupEnv, log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Resolve(lookup LookupFunc, log logger.Logger) *Config {
	env := envReader{lookup: lookup, log: log}

	cwd, _ := os.Getwd()
	projectRoot := env.String("PROJECT_ROOT", cwd)
	jwtSecret := env.String("JWT_SECRET", "")

	timezone := env.String("TIMEZONE", "UTC")
	location, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn("config: unknown timezone, falling back to UTC", "timezone", timezone, "error", err)
		location = time.UTC
	}

	historyDB := filepath.Join(projectRoot, ".git-deploy.db")
	if v, ok := env.Lookup("HISTORY_DB"); ok {
		historyDB = v
	} else if env.ExplicitlyEmpty("HISTORY_DB") {
		historyDB = ""
	}

	return &Config{
		Address:   env.String("HTTP_ADDR", ":8080"),
		LogLevel:  env.String("LOG_LEVEL", "info"),
		LogFormat: env.String("LOG_FORMAT", "text"),

		JWTSecret:     jwtSecret,
		WebhookSecret: env.String("WEBHOOK_SECRET", jwtSecret),
		GitBinary:     env.String("GIT_BINARY", "/usr/bin/git"),
		ProjectRoot:   projectRoot,
		Timezone:      timezone,
		Location:      location,

		Telegram: TelegramConfig{
			BotToken: env.String("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   env.String("TELEGRAM_CHAT_ID", ""),
			Enabled:  env.Bool("TELEGRAM_ENABLED", true),
		},
		JWT: JWTConfig{
			Algorithm:  env.String("JWT_ALGO", "HS256"),
			Issuer:     env.String("JWT_ISSUER", "central_system"),
			Audience:   env.String("JWT_AUDIENCE", "central_system"),
			Expiration: time.Duration(env.Int("JWT_EXPIRATION", 3600)) * time.Second,
			Leeway:     time.Duration(env.Int("JWT_LEEWAY", 30)) * time.Second,
		},
		Deployment: DeploymentConfig{
			Enabled:         env.Bool("DEPLOYMENT_ENABLED", true),
			AutoComposer:    env.Bool("AUTO_COMPOSER", true),
			BackupCommits:   env.Bool("BACKUP_COMMITS", true),
			ClearCache:      env.Bool("CLEAR_CACHE", false),
			FixPermissions:  env.Bool("FIX_PERMISSIONS", false),
			ExecutableFiles: env.List("EXECUTABLE_FILES", nil),
			CustomScript:    env.String("CUSTOM_SCRIPT", ""),
			MaxBackupAge:    time.Duration(env.Int("MAX_BACKUP_AGE_HOURS", 168)) * time.Hour,
			StashExcludes:   env.List("STASH_EXCLUDES", []string{".htaccess", "public/.htaccess"}),
			Dependency:      DefaultDependencyManager(),
		},
		Security: SecurityConfig{
			ValidateGitLabIPs: env.Bool("VALIDATE_GITLAB_IPS", false),
			AllowedIPs:        env.List("ALLOWED_IPS", nil),
		},

		BackupStore:    strings.ToLower(env.String("BACKUP_STORE", BackupStoreFile)),
		HistoryDB:      historyDB,
		AllowedOrigins: env.List("ALLOWED_ORIGINS", nil),
	}
}

func DefaultDependencyManager() DependencyManagerConfig {
	return DependencyManagerConfig{
		Name:      "composer",
		Manifests: []string{"composer.json", "composer.lock"},
		SearchPaths: []string{
			"/usr/local/bin/composer",
			"/usr/bin/composer",
			"/usr/local/bin/composer.phar",
			"/usr/bin/composer.phar",
		},
		PathNames:   []string{"composer", "composer.phar"},
		InstallArgs: []string{"install", "--no-dev", "--optimize-autoloader"},
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is invalid (%s)", domain.ErrConfig, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	if _, err := os.Stat(c.GitBinary); err != nil {
		return fmt.Errorf("%w: git binary not found at: %s", domain.ErrConfig, c.GitBinary)
	}

	info, err := os.Stat(c.ProjectRoot)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: project root directory not found: %s", domain.ErrConfig, c.ProjectRoot)
	}

	return nil
}

func (c *Config) BackupFile() string {
	return filepath.Join(c.ProjectRoot, BackupFileName)
}

// GitLabRanges returns the configured allow-list, or GitLab.com's
// published webhook ranges when none is configured.
func (s SecurityConfig) GitLabRanges() []string {
	if len(s.AllowedIPs) == 0 {
		return DefaultGitLabRanges
	}
	return s.AllowedIPs
}

type envReader struct {
	lookup LookupFunc
	log    logger.Logger
}

// Lookup resolves GITDEPLOY_<key> first and falls back to the bare
// legacy name, logging a deprecation warning when the fallback is used.
func (e envReader) Lookup(key string) (string, bool) {
	if v, ok := e.lookup(EnvPrefix + key); ok && v != "" {
		return v, true
	}

	if v, ok := e.lookup(key); ok && v != "" {
		e.log.Warn("config: deprecated environment variable, use the prefixed name",
			"variable", key,
			"replacement", EnvPrefix+key,
		)
		return v, true
	}

	return "", false
}

// ExplicitlyEmpty reports whether key is set, under either name, to an
// empty value.
func (e envReader) ExplicitlyEmpty(key string) bool {
	for _, name := range []string{EnvPrefix + key, key} {
		if v, ok := e.lookup(name); ok && v == "" {
			return true
		}
	}
	return false
}

func (e envReader) String(key, fallback string) string {
	if v, ok := e.Lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e envReader) Int(key string, fallback int) int {
	v, ok := e.Lookup(key)
	if !ok {
		return fallback
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.log.Warn("config: invalid integer, using default", "variable", key, "value", v, "default", fallback)
		return fallback
	}

	return parsed
}

func (e envReader) Bool(key string, fallback bool) bool {
	v, ok := e.Lookup(key)
	if !ok {
		return fallback
	}

	parsed, valid := ParseBool(v)
	if !valid {
		e.log.Warn("config: invalid boolean, using default", "variable", key, "value", v, "default", fallback)
		return fallback
	}

	return parsed
}

func (e envReader) List(key string, fallback []string) []string {
	v, ok := e.Lookup(key)
	if !ok {
		return fallback
	}

	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// ParseBool accepts the spellings commonly found in .env files.
func ParseBool(v string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "y", "t":
		return true, true
	case "0", "false", "no", "off", "n", "f", "":
		return false, true
	default:
		return false, false
	}
}
