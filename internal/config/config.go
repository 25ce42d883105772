package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Env             string        `yaml:"env"` // dev | prod
		Port            string        `yaml:"port"`
		PublicBaseURL   string        `yaml:"public_base_url"`
		RethrowErrors   bool          `yaml:"rethrow_errors"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Database struct {
		Driver         string        `yaml:"driver"` // postgres | pgx
		DSN            string        `yaml:"dsn"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Sessions struct {
		Store        string        `yaml:"store"` // redis | memory
		TTL          time.Duration `yaml:"ttl"`
		CookieSecure bool          `yaml:"cookie_secure"`
	} `yaml:"sessions"`

	Login struct {
		// AutoLink creates or email-links back-office users for unknown external logins.
		AutoLink bool `yaml:"auto_link"`
	} `yaml:"login"`

	Providers struct {
		OIDC   []OIDCProvider  `yaml:"oidc"`
		GitHub *GitHubProvider `yaml:"github"`
	} `yaml:"providers"`
}

// OIDCProvider configures one OpenID Connect issuer.
type OIDCProvider struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	// PublicAuthURL replaces the discovered authorization endpoint, for
	// issuers reachable under a different host from the browser.
	PublicAuthURL string `yaml:"public_auth_url"`
}

type GitHubProvider struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// Default returns a config with every optional field filled in.
func Default() Config {
	var c Config
	c.App.Name = "backoffice"
	c.App.Env = "dev"
	c.App.Port = "8080"
	c.App.ShutdownTimeout = 10 * time.Second
	c.Log.Level = "info"
	c.Database.Driver = "postgres"
	c.Database.ConnectTimeout = 30 * time.Second
	c.Redis.Addr = "localhost:6379"
	c.Sessions.Store = "redis"
	c.Sessions.TTL = 24 * time.Hour
	c.Sessions.CookieSecure = true
	c.Login.AutoLink = true
	return c
}

// Load reads .env (if present), the YAML file at path (if non-empty) and
// environment overrides, in that order, then validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.App.Env = getenv("APP_ENV", c.App.Env)
	c.App.Port = getenv("APP_PORT", c.App.Port)
	c.App.PublicBaseURL = getenv("APP_PUBLIC_BASE_URL", c.App.PublicBaseURL)
	c.App.RethrowErrors = getenvBool("APP_RETHROW_ERRORS", c.App.RethrowErrors)
	c.App.ShutdownTimeout = getenvDuration("APP_SHUTDOWN_TIMEOUT", c.App.ShutdownTimeout)

	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)

	c.Database.Driver = getenv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = getenv("DATABASE_DSN", c.Database.DSN)
	c.Database.ConnectTimeout = getenvDuration("DATABASE_CONNECT_TIMEOUT", c.Database.ConnectTimeout)

	c.Redis.Addr = getenv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getenvInt("REDIS_DB", c.Redis.DB)

	c.Sessions.Store = getenv("SESSION_STORE", c.Sessions.Store)
	c.Sessions.TTL = getenvDuration("SESSION_TTL", c.Sessions.TTL)
	c.Sessions.CookieSecure = getenvBool("SESSION_COOKIE_SECURE", c.Sessions.CookieSecure)

	c.Login.AutoLink = getenvBool("LOGIN_AUTO_LINK", c.Login.AutoLink)

	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		c.upsertOIDC(OIDCProvider{
			Name:         "google",
			DisplayName:  "Google",
			Issuer:       "https://accounts.google.com",
			ClientID:     id,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		})
	}

	if issuer := os.Getenv("KEYCLOAK_ISSUER"); issuer != "" {
		c.upsertOIDC(OIDCProvider{
			Name:          "keycloak",
			DisplayName:   "Keycloak",
			Issuer:        issuer,
			ClientID:      os.Getenv("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  os.Getenv("KEYCLOAK_CLIENT_SECRET"),
			RedirectURL:   os.Getenv("KEYCLOAK_REDIRECT_URL"),
			PublicAuthURL: os.Getenv("KEYCLOAK_PUBLIC_AUTH_URL"),
		})
	}

	if id := os.Getenv("GITHUB_CLIENT_ID"); id != "" {
		c.Providers.GitHub = &GitHubProvider{
			ClientID:     id,
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
		}
	}
}

// upsertOIDC replaces the provider with the same name, or appends it.
func (c *Config) upsertOIDC(p OIDCProvider) {
	for i := range c.Providers.OIDC {
		if c.Providers.OIDC[i].Name == p.Name {
			c.Providers.OIDC[i] = p
			return
		}
	}
	c.Providers.OIDC = append(c.Providers.OIDC, p)
}

// Validate reports every missing or invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.App.Port == "" {
		errs = append(errs, errors.New("app.port is required"))
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Sessions.Store {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("sessions.store %q is not supported", c.Sessions.Store))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}

	seen := map[string]bool{}
	for i, p := range c.Providers.OIDC {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers.oidc[%d].name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("providers.oidc: duplicate name %q", p.Name))
		}
		seen[p.Name] = true
	}
	if c.Providers.GitHub != nil && seen["github"] {
		errs = append(errs, errors.New(`providers: "github" is configured twice`))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
