package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Chat     ChatConfig     `yaml:"chat"`
	Routes   []RouteConfig  `yaml:"routes"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
	// AllowedOrigins lists storefront origins permitted for CORS and the
	// websocket upgrade. A trailing * matches by prefix.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	Retention       time.Duration `yaml:"retention"`        // transcript/attachment lifetime
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // how often expired rows are purged
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type StorageConfig struct {
	BlobRoot       string    `yaml:"blob_root"`
	UploadMaxBytes SizeBytes `yaml:"upload_max_bytes"`
}

// ChatConfig drives the simulated delivery pipeline of the widget.
type ChatConfig struct {
	Timezone         string        `yaml:"timezone"`
	RecallWindow     time.Duration `yaml:"recall_window"`
	SentDelay        time.Duration `yaml:"sent_delay"`
	ReplyDelay       time.Duration `yaml:"reply_delay"`
	SeenDelay        time.Duration `yaml:"seen_delay"`
	MaxContentLength int           `yaml:"max_content_length"`
}

// RouteConfig is one entry of the storefront routing table the widget can navigate to.
type RouteConfig struct {
	Key   string `yaml:"key"`
	Path  string `yaml:"path"`
	Title string `yaml:"title"`
}

// SizeBytes is a byte count written either as a plain integer or in a
// human form like "8MB" or "8MiB".
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size value %q: %w", node.Value, err)
	}
	*s = SizeBytes(v)
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	// Validation sees the effective values, defaults included.
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NAMLONG_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("NAMLONG_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NAMLONG_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, origin)
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Chat.ReplyDelay <= c.Chat.SentDelay {
		return fmt.Errorf("chat.reply_delay must be greater than chat.sent_delay")
	}
	if c.Chat.Timezone != "" {
		if _, err := time.LoadLocation(c.Chat.Timezone); err != nil {
			return fmt.Errorf("chat.timezone: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if strings.TrimSpace(r.Key) == "" {
			return fmt.Errorf("routes[%d].key is required", i)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("routes[%d].path must start with /", i)
		}
		if seen[r.Key] {
			return fmt.Errorf("routes[%d].key %q is duplicated", i, r.Key)
		}
		seen[r.Key] = true
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "Nam Long Center"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/namlong.db"
	}
	if c.Database.Retention == 0 {
		c.Database.Retention = 30 * 24 * time.Hour
	}
	if c.Database.CleanupInterval == 0 {
		c.Database.CleanupInterval = time.Hour
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.Storage.BlobRoot == "" {
		c.Storage.BlobRoot = "./data/blobs"
	}
	if c.Storage.UploadMaxBytes == 0 {
		c.Storage.UploadMaxBytes = 8 << 20
	}
	// Chat defaults mirror the widget's scripted delays
	if c.Chat.Timezone == "" {
		c.Chat.Timezone = "Asia/Ho_Chi_Minh"
	}
	if c.Chat.RecallWindow == 0 {
		c.Chat.RecallWindow = 15 * time.Minute
	}
	if c.Chat.SentDelay == 0 {
		c.Chat.SentDelay = 100 * time.Millisecond
	}
	if c.Chat.ReplyDelay == 0 {
		c.Chat.ReplyDelay = 600 * time.Millisecond
	}
	if c.Chat.SeenDelay == 0 {
		c.Chat.SeenDelay = 600 * time.Millisecond
	}
	if c.Chat.MaxContentLength == 0 {
		c.Chat.MaxContentLength = 4000
	}
	if len(c.Routes) == 0 {
		c.Routes = DefaultRoutes()
	}
}

// DefaultRoutes is the storefront routing table used when none is configured.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Key: "home", Path: "/", Title: "Trang chủ"},
		{Key: "courses", Path: "/khoa-hoc", Title: "Khóa học"},
		{Key: "marketplace", Path: "/cho", Title: "Chợ"},
		{Key: "library", Path: "/thu-vien", Title: "Thư viện"},
		{Key: "contact", Path: "/lien-he", Title: "Liên hệ"},
		{Key: "faq", Path: "/hoi-dap", Title: "Câu hỏi thường gặp"},
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location returns the timezone used for date grouping.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Chat.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
