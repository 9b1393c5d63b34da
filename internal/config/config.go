package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Duration reads Go duration strings such as "250ms" from TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Database  DatabaseConfig  `toml:"database"`
	Bidding   BiddingConfig   `toml:"bidding"`
	Sweep     SweepConfig     `toml:"sweep"`
	Room      RoomConfig      `toml:"room"`
	WebSocket WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port            string   `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig selects the auction store. Driver is "memory" or "postgres".
type DatabaseConfig struct {
	Driver   string `toml:"driver"`
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
}

type BiddingConfig struct {
	LockTimeout      Duration `toml:"lock_timeout"`
	PersistTimeout   Duration `toml:"persist_timeout"`
	MaxCommitRetries int      `toml:"max_commit_retries"`
	CacheSize        int      `toml:"cache_size"`
	CacheTTL         Duration `toml:"cache_ttl"`
}

type SweepConfig struct {
	Interval    Duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
}

type RoomConfig struct {
	RecentEvents     int      `toml:"recent_events"`
	SubscriberBuffer int      `toml:"subscriber_buffer"`
	MaxPending       int      `toml:"max_pending"`
	ReorderWindow    Duration `toml:"reorder_window"`
}

type WebSocketConfig struct {
	PingInterval   Duration `toml:"ping_interval"`
	WriteTimeout   Duration `toml:"write_timeout"`
	MaxMessageSize int64    `toml:"max_message_size"`
	BidsPerSecond  float64  `toml:"bids_per_second"`
	BidBurst       int      `toml:"bid_burst"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver:   "memory",
			MaxConns: 10,
		},
		Bidding: BiddingConfig{
			LockTimeout:      Duration{2 * time.Second},
			PersistTimeout:   Duration{3 * time.Second},
			MaxCommitRetries: 3,
			CacheSize:        1024,
			CacheTTL:         Duration{time.Second},
		},
		Sweep: SweepConfig{
			Interval:    Duration{2 * time.Second},
			Concurrency: 8,
		},
		Room: RoomConfig{
			RecentEvents:     20,
			SubscriberBuffer: 64,
			MaxPending:       32,
			ReorderWindow:    Duration{200 * time.Millisecond},
		},
		WebSocket: WebSocketConfig{
			PingInterval:   Duration{30 * time.Second},
			WriteTimeout:   Duration{10 * time.Second},
			MaxMessageSize: 4096,
			BidsPerSecond:  5,
			BidBurst:       5,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies the
// environment (after loading envFile, if it exists). A missing config
// file is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: failed to load %s: %w", envFile, err)
		}
	}

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: failed to open %s: %w", path, err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("config: failed to decode %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
}

// Validate rejects settings the service cannot run with
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("config: postgres driver requires database.url or DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Database.Driver)
	}
	if c.Bidding.LockTimeout.Duration <= 0 || c.Bidding.PersistTimeout.Duration <= 0 {
		return errors.New("config: bidding timeouts must be positive")
	}
	if c.Bidding.CacheTTL.Duration <= 0 {
		return errors.New("config: bidding.cache_ttl must be positive")
	}
	if c.Bidding.MaxCommitRetries < 0 {
		return errors.New("config: bidding.max_commit_retries must not be negative")
	}
	if c.Sweep.Interval.Duration <= 0 || c.Sweep.Concurrency <= 0 {
		return errors.New("config: sweep interval and concurrency must be positive")
	}
	if c.WebSocket.BidsPerSecond <= 0 || c.WebSocket.BidBurst <= 0 {
		return errors.New("config: websocket bid rate must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + c.Server.Port
}
