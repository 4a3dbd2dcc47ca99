package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds process-level configuration loaded from the environment.
// Per-tunnel and per-tunnel-set configuration is data persisted through the
// database layer, not environment variables; Settings covers only the
// ambient knobs every component needs regardless of which tunnels exist.
type Settings struct {
	DataPath   string `envconfig:"DATA_PATH" default:"/app/data"`
	DBPath     string `envconfig:"DB_PATH" default:"/app/data/miaoagent.db"`
	LogPath    string `envconfig:"LOG_PATH" default:"/app/data/miaoagent.log"`
	StatusAddr string `envconfig:"STATUS_ADDR" default:"127.0.0.1:8787"`

	// DefaultScanIntervalMs is loaded from the environment, but no component
	// reads it: a TcpTunnelSetConfig without its own interval is raised to
	// the 500 ms minimum by TcpTunnelSetConfig.Clamp.
	DefaultScanIntervalMs int `envconfig:"DEFAULT_SCAN_INTERVAL_MS" default:"5000"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("MIAOAGENT", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
