package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/exec"
	"main/internal/feature"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Symbols  []SymbolConfig `json:"symbols"`
	Feature  feature.Config `json:"feature"`
	Signal   SignalConfig   `json:"signal"`
	Exec     exec.Config    `json:"exec"`
	Risk     risk.Config    `json:"risk"`
	Feed     FeedConfig     `json:"feed"`
	Queue    QueueConfig    `json:"queue"`
	Store    StoreConfig    `json:"store"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Profile  ProfileConfig  `json:"profile"`
}

// SymbolConfig describes one tradable instrument.
type SymbolConfig struct {
	Name  string           `json:"name"`
	Scale schema.ScaleSpec `json:"scale"`
}

// SignalConfig carries the signal engine settings plus the bootstrap
// classifier threshold.
type SignalConfig struct {
	signal.Config
	OBIThreshold float64       `json:"obiThreshold"`
	LabelHorizon time.Duration `json:"labelHorizon"`
}

// FeedConfig describes the market-data and order-entry connection.
type FeedConfig struct {
	Endpoint      string `json:"endpoint"`
	SnapshotDepth int    `json:"snapshotDepth"`
}

// QueueConfig sizes the per-symbol event queues.
type QueueConfig struct {
	MarketDataCapacity int `json:"marketDataCapacity"`
	ExecReportCapacity int `json:"execReportCapacity"`
}

// StoreConfig describes the optional fill database.
type StoreConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// SnapshotConfig controls position snapshot persistence.
type SnapshotConfig struct {
	Path     string        `json:"path"`
	Interval time.Duration `json:"interval"`
}

// ProfileConfig enables continuous profiling.
type ProfileConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry *schema.Registry
	Feature  feature.Config
	Signal   SignalConfig
	Exec     exec.Config
	Risk     risk.Config
	Feed     FeedConfig
	Queue    QueueConfig
	Store    StoreConfig
	Snapshot SnapshotConfig
	Profile  ProfileConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

// Default returns a resolved configuration suitable for paper trading.
func Default() (Loaded, error) {
	return resolve(FileConfig{
		Symbols: []SymbolConfig{
			{Name: "BTC-PERP", Scale: schema.ScaleSpec{PriceScale: 2, QuantityScale: 8}},
		},
		Exec: exec.Config{OrderQty: 1},
		Risk: risk.Config{
			MaxOrderQty:      1_000,
			MaxOrderNotional: 1_000_000_000,
			MaxPosition:      5_000,
		},
	})
}

func resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Symbols)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Signal.OBIThreshold <= 0 {
		cfg.Signal.OBIThreshold = 0.15
	}
	if cfg.Signal.LabelHorizon <= 0 {
		cfg.Signal.LabelHorizon = 5 * time.Second
	}
	if cfg.Queue.MarketDataCapacity <= 0 {
		cfg.Queue.MarketDataCapacity = 4096
	}
	if cfg.Queue.ExecReportCapacity <= 0 {
		cfg.Queue.ExecReportCapacity = 1024
	}
	if cfg.Feed.SnapshotDepth <= 0 {
		cfg.Feed.SnapshotDepth = 50
	}
	if cfg.Exec.OrderQty <= 0 {
		return Loaded{}, fmt.Errorf("exec orderQty must be > 0")
	}
	if cfg.Profile.Enabled && cfg.Profile.ServerAddress == "" {
		return Loaded{}, fmt.Errorf("profile enabled without serverAddress")
	}
	if cfg.Profile.AppName == "" {
		cfg.Profile.AppName = "trader"
	}
	return Loaded{
		Registry: registry,
		Feature:  cfg.Feature,
		Signal:   cfg.Signal,
		Exec:     cfg.Exec,
		Risk:     cfg.Risk,
		Feed:     cfg.Feed,
		Queue:    cfg.Queue,
		Store:    cfg.Store,
		Snapshot: cfg.Snapshot,
		Profile:  cfg.Profile,
	}, nil
}

func buildRegistry(symbols []SymbolConfig) (*schema.Registry, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	reg := schema.NewRegistry()
	for _, sym := range symbols {
		if err := validateScale(sym.Scale); err != nil {
			return nil, fmt.Errorf("invalid scale for %s: %w", sym.Name, err)
		}
		if _, err := reg.AddSymbol(sym.Name, sym.Scale); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}
