package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Session    SessionConfig    `yaml:"session"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Admin      AdminConfig      `yaml:"admin"`
	Demo       DemoConfig       `yaml:"demo"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// UpstreamConfig describes the lab log-collection REST API.
type UpstreamConfig struct {
	// BaseURL is prepended to every path. Empty means same-origin relative requests.
	BaseURL        string        `yaml:"base_url"`
	HTTPProxy      string        `yaml:"http_proxy"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	Paths          Paths         `yaml:"paths"`
}

// Paths is the endpoint path table of the upstream API.
type Paths struct {
	Login              string `yaml:"login"`
	Logout             string `yaml:"logout"`
	UserList           string `yaml:"user_list"`
	InviteUser         string `yaml:"invite_user"`
	ResetPassword      string `yaml:"reset_password"`
	DeleteUser         string `yaml:"delete_user"`
	LabInventory       string `yaml:"lab_inventory"`
	DeviceInventory    string `yaml:"device_inventory"`
	StartLogCollection string `yaml:"start_log_collection"`
	ListLogCollections string `yaml:"list_log_collections"`
}

// DefaultPaths returns the endpoint paths used when nothing overrides them.
func DefaultPaths() Paths {
	return Paths{
		Login:              "/log-auth/login",
		Logout:             "/log-auth/logout",
		UserList:           "/log-auth/user_list",
		InviteUser:         "/log-auth/invite_user",
		ResetPassword:      "/log-auth/reset_forgot_password",
		DeleteUser:         "/log-auth/delete_user",
		LabInventory:       "/device-inventory/get_lab_inventory",
		DeviceInventory:    "/device-inventory/get_all_lls_inventory",
		StartLogCollection: "/log-collector/start_log_collection",
		ListLogCollections: "/log-collector/get_log_collections",
	}
}

// DashboardConfig holds the job table polling settings.
type DashboardConfig struct {
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	PageLimit           int           `yaml:"page_limit"`
	IdleMinutes         int           `yaml:"idle_minutes"`
}

// SessionConfig holds the browser session settings.
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookie_name"`
	Secure     bool   `yaml:"secure"`
	// EphemeralTTLMinutes bounds sessions that were not "remembered" at login.
	EphemeralTTLMinutes int `yaml:"ephemeral_ttl_minutes"`
	RememberDays        int `yaml:"remember_days"`
}

// DatabaseConfig holds the durable store connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// AdminConfig holds settings used by the user management screen.
type AdminConfig struct {
	// ResetSecret is sent with every password reset request. See DESIGN.md.
	ResetSecret string `yaml:"reset_secret"`
}

// DemoConfig switches the console to generated fixture data.
type DemoConfig struct {
	Enabled bool  `yaml:"enabled"`
	Seed    int64 `yaml:"seed"`
}

// legacyResetSecret is the value the upstream reset endpoint has always received.
const legacyResetSecret = "lablog-reset"

// Load reads the configuration from the given path, then applies environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	ApplyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration built only from defaults and the environment.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 30
	}
	cfg.Upstream.Timeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	fillPaths(&cfg.Upstream.Paths)

	if cfg.Dashboard.PollIntervalSeconds <= 0 {
		cfg.Dashboard.PollIntervalSeconds = 30
	}
	cfg.Dashboard.PollInterval = time.Duration(cfg.Dashboard.PollIntervalSeconds) * time.Second
	if cfg.Dashboard.PageLimit <= 0 {
		cfg.Dashboard.PageLimit = 10
	}
	if cfg.Dashboard.IdleMinutes <= 0 {
		cfg.Dashboard.IdleMinutes = 15
	}

	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "lablog_session"
	}
	if cfg.Session.EphemeralTTLMinutes <= 0 {
		cfg.Session.EphemeralTTLMinutes = 60
	}
	if cfg.Session.RememberDays <= 0 {
		cfg.Session.RememberDays = 30
	}
	if cfg.Session.Secret == "" {
		log.Printf("session.secret is not set; cookies will not survive a restart")
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:lablog-console.db?cache=shared"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Admin.ResetSecret == "" {
		cfg.Admin.ResetSecret = legacyResetSecret
	}
}

func fillPaths(p *Paths) {
	def := DefaultPaths()
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&p.Login, def.Login)
	fill(&p.Logout, def.Logout)
	fill(&p.UserList, def.UserList)
	fill(&p.InviteUser, def.InviteUser)
	fill(&p.ResetPassword, def.ResetPassword)
	fill(&p.DeleteUser, def.DeleteUser)
	fill(&p.LabInventory, def.LabInventory)
	fill(&p.DeviceInventory, def.DeviceInventory)
	fill(&p.StartLogCollection, def.StartLogCollection)
	fill(&p.ListLogCollections, def.ListLogCollections)
}

// ApplyEnv overrides configuration values with CONSOLE_* environment variables.
// Every upstream path can be overridden individually.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("CONSOLE_API_BASE_URL"); ok {
		cfg.Upstream.BaseURL = strings.TrimSpace(v)
	}
	cfg.Upstream.HTTPProxy = getEnv("CONSOLE_HTTP_PROXY", cfg.Upstream.HTTPProxy)
	cfg.Upstream.TimeoutSeconds = getEnvInt("CONSOLE_API_TIMEOUT_SEC", cfg.Upstream.TimeoutSeconds)

	p := &cfg.Upstream.Paths
	p.Login = getEnv("CONSOLE_PATH_LOGIN", p.Login)
	p.Logout = getEnv("CONSOLE_PATH_LOGOUT", p.Logout)
	p.UserList = getEnv("CONSOLE_PATH_USER_LIST", p.UserList)
	p.InviteUser = getEnv("CONSOLE_PATH_INVITE_USER", p.InviteUser)
	p.ResetPassword = getEnv("CONSOLE_PATH_RESET_PASSWORD", p.ResetPassword)
	p.DeleteUser = getEnv("CONSOLE_PATH_DELETE_USER", p.DeleteUser)
	p.LabInventory = getEnv("CONSOLE_PATH_LAB_INVENTORY", p.LabInventory)
	p.DeviceInventory = getEnv("CONSOLE_PATH_DEVICE_INVENTORY", p.DeviceInventory)
	p.StartLogCollection = getEnv("CONSOLE_PATH_START_LOG_COLLECTION", p.StartLogCollection)
	p.ListLogCollections = getEnv("CONSOLE_PATH_LIST_LOG_COLLECTIONS", p.ListLogCollections)

	cfg.Server.Port = getEnvInt("CONSOLE_PORT", cfg.Server.Port)
	cfg.Dashboard.PollIntervalSeconds = getEnvInt("CONSOLE_POLL_INTERVAL_SEC", cfg.Dashboard.PollIntervalSeconds)
	cfg.Session.Secret = getEnv("CONSOLE_SESSION_SECRET", cfg.Session.Secret)
	cfg.Database.Driver = getEnv("CONSOLE_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("CONSOLE_DB_DSN", cfg.Database.DSN)
	cfg.Demo.Enabled = getEnvBool("CONSOLE_DEMO_MODE", cfg.Demo.Enabled)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}
