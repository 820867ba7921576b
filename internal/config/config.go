package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Global represents ~/.gsm/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Config is the per-profile gsm.toml.
type Config struct {
	API       API       `toml:"api"`
	Worker    Worker    `toml:"worker"`
	Messaging Messaging `toml:"messaging"`
	UI        UI        `toml:"ui"`
}

// API locates the marketplace backend.
type API struct {
	Origin   string   `toml:"origin"`
	BasePath string   `toml:"base_path"`
	WSPath   string   `toml:"ws_path"`
	Timeout  Duration `toml:"timeout"`
}

// Worker configures the caching proxy daemon.
type Worker struct {
	Listen          string   `toml:"listen"`
	CacheVersion    string   `toml:"cache_version"`
	Limits          Limits   `toml:"limits"`
	Precache        []string `toml:"precache"`
	OfflinePage     string   `toml:"offline_page"`
	SkipWaiting     bool     `toml:"skip_waiting"`
	RefreshPaths    []string `toml:"refresh_paths"`
	RefreshInterval Duration `toml:"refresh_interval"`
	SyncInterval    Duration `toml:"sync_interval"`
}

// Limits caps each bucket's entry count. Zero means unlimited.
type Limits struct {
	Static  int `toml:"static"`
	Dynamic int `toml:"dynamic"`
	Images  int `toml:"images"`
	API     int `toml:"api"`
}

// Messaging configures the STOMP client.
type Messaging struct {
	ReconnectDelay Duration `toml:"reconnect_delay"`
	TypingIdle     Duration `toml:"typing_idle"`
	HeartBeat      Duration `toml:"heart_beat"`
}

// UI holds client preferences.
type UI struct {
	Language string `toml:"language"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no gsm.toml exists.
func Default() *Config {
	return &Config{
		API: API{
			Origin:   "http://localhost:8080",
			BasePath: "/api/v1",
			WSPath:   "/ws/websocket",
			Timeout:  Duration{30 * time.Second},
		},
		Worker: Worker{
			Listen:       "127.0.0.1:8787",
			CacheVersion: "v1.0.0",
			Limits:       Limits{Static: 0, Dynamic: 50, Images: 100, API: 50},
			Precache: []string{
				"/",
				"/index.html",
				"/manifest.json",
				"/robots.txt",
				"/placeholder-game.jpg",
				"/logo.svg",
			},
			OfflinePage:     "/offline.html",
			RefreshPaths:    []string{"/", "/api/posts", "/api/categories"},
			RefreshInterval: Duration{12 * time.Hour},
			SyncInterval:    Duration{30 * time.Second},
		},
		Messaging: Messaging{
			ReconnectDelay: Duration{5 * time.Second},
			TypingIdle:     Duration{3 * time.Second},
			HeartBeat:      Duration{10 * time.Second},
		},
		UI: UI{Language: "ar"},
	}
}

// LoadGlobal reads the global config. Returns error if file missing.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a profile config over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes any config value to the given path, creating parent dirs as needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// BaseURL returns origin + base path, e.g. http://host/api/v1.
func (a API) BaseURL() string {
	return strings.TrimRight(a.Origin, "/") + a.BasePath
}

// WSURL returns the STOMP WebSocket endpoint, e.g. ws://host/api/v1/ws/websocket.
func (a API) WSURL() string {
	base := a.BaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + a.WSPath
}
