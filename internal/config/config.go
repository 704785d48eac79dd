// Package config loads node configuration from defaults, an optional JSON
// file, a .env file and ARENA_* environment variables, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"espnow-arena/node/internal/engine"
	"espnow-arena/node/internal/node"
	"espnow-arena/node/internal/telemetry"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

const (
	TransportUDP = "udp"
	TransportWS  = "ws"

	envPrefix = "ARENA_"
)

// Config is the on-disk and environment form of a node's settings.
// Durations are whole milliseconds.
type Config struct {
	PlayerID  int    `json:"playerId" jsonschema:"enum=0,enum=1,description=Local player id"`
	Host      bool   `json:"host" jsonschema:"description=Distributes the round seed to the peer"`
	Transport string `json:"transport" jsonschema:"enum=udp,enum=ws"`
	Listen    string `json:"listen" jsonschema:"description=Local host:port for the link"`
	Peer      string `json:"peer,omitempty" jsonschema:"description=Peer host:port; empty waits for the peer to join"`

	Rows int `json:"rows" jsonschema:"minimum=5"`
	Cols int `json:"cols" jsonschema:"minimum=5"`

	FuseMs            int `json:"fuseMs" jsonschema:"minimum=1"`
	ExplosionMs       int `json:"explosionMs" jsonschema:"minimum=1"`
	BlastRadius       int `json:"blastRadius" jsonschema:"minimum=1"`
	PostHitInvulMs    int `json:"postHitInvulMs" jsonschema:"minimum=0"`
	SpawnInvulMs      int `json:"spawnInvulMs" jsonschema:"minimum=0"`
	Lives             int `json:"lives" jsonschema:"minimum=1"`
	MaxBombs          int `json:"maxBombs" jsonschema:"minimum=1"`
	MaxExplosionCells int `json:"maxExplosionCells" jsonschema:"minimum=1"`

	MapSeed       uint32 `json:"mapSeed,omitempty" jsonschema:"description=Fixed map seed; 0 disables"`
	AutoRandomize bool   `json:"autoRandomize,omitempty"`

	TickRate        int     `json:"tickRate" jsonschema:"minimum=1"`
	HeartbeatMs     int     `json:"heartbeatMs" jsonschema:"minimum=1"`
	SnapshotMs      int     `json:"snapshotMs" jsonschema:"minimum=0,description=StateSnapshot interval; 0 disables"`
	PositionRate    float64 `json:"positionRate" jsonschema:"description=Position broadcasts per second"`
	ProbeIntervalMs int     `json:"probeIntervalMs" jsonschema:"minimum=0,description=Reachability probe interval; 0 disables"`
	ReachTimeoutMs  int     `json:"reachTimeoutMs" jsonschema:"minimum=1"`

	DiagAddr string `json:"diagAddr,omitempty" jsonschema:"description=HTTP diagnostics address; empty disables"`
	Display  bool   `json:"display,omitempty" jsonschema:"description=Terminal display and keyboard input"`
	Pprof    bool   `json:"pprof,omitempty" jsonschema:"description=Serve pprof under /debug on the diagnostics address"`

	LogSinks       []string `json:"logSinks" jsonschema:"description=Enabled sinks: console or json"`
	LogJSONPath    string   `json:"logJsonPath,omitempty"`
	LogMinSeverity string   `json:"logMinSeverity" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default mirrors node.DefaultConfig.
func Default() Config {
	nc := node.DefaultConfig()
	ec := nc.Engine
	return Config{
		Transport:         TransportUDP,
		Listen:            "0.0.0.0:47000",
		Rows:              nc.Rows,
		Cols:              nc.Cols,
		FuseMs:            int(ec.Fuse / time.Millisecond),
		ExplosionMs:       int(ec.ExplosionVisible / time.Millisecond),
		BlastRadius:       ec.Radius,
		PostHitInvulMs:    int(ec.PostHitInvul / time.Millisecond),
		SpawnInvulMs:      int(ec.SpawnInvul / time.Millisecond),
		Lives:             ec.Lives,
		MaxBombs:          ec.MaxBombs,
		MaxExplosionCells: ec.MaxExplosionCells,
		TickRate:          nc.TickRate,
		HeartbeatMs:       int(nc.HeartbeatInterval / time.Millisecond),
		SnapshotMs:        int(nc.SnapshotInterval / time.Millisecond),
		PositionRate:      nc.PositionRate,
		ProbeIntervalMs:   5000,
		ReachTimeoutMs:    int(nc.ReachTimeout / time.Millisecond),
		LogSinks:          []string{"console"},
		LogMinSeverity:    "info",
	}
}

// Load builds the configuration. path may be empty; envFiles default to
// ".env" and missing files are skipped. Malformed environment values are
// logged and ignored.
func Load(path string, logger telemetry.Logger, envFiles ...string) (Config, error) {
	if logger == nil {
		logger = telemetry.Discard()
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg.applyEnv(logger)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(logger telemetry.Logger) {
	envInt("PLAYER_ID", &c.PlayerID, logger)
	envBool("HOST", &c.Host, logger)
	envString("TRANSPORT", &c.Transport)
	envString("LISTEN", &c.Listen)
	envString("PEER", &c.Peer)
	envInt("ROWS", &c.Rows, logger)
	envInt("COLS", &c.Cols, logger)
	envInt("FUSE_MS", &c.FuseMs, logger)
	envInt("EXPLOSION_MS", &c.ExplosionMs, logger)
	envInt("BLAST_RADIUS", &c.BlastRadius, logger)
	envInt("POST_HIT_INVUL_MS", &c.PostHitInvulMs, logger)
	envInt("SPAWN_INVUL_MS", &c.SpawnInvulMs, logger)
	envInt("LIVES", &c.Lives, logger)
	envInt("MAX_BOMBS", &c.MaxBombs, logger)
	envInt("MAX_EXPLOSION_CELLS", &c.MaxExplosionCells, logger)
	if raw, ok := lookup("MAP_SEED"); ok {
		if v, err := strconv.ParseUint(raw, 0, 32); err == nil {
			c.MapSeed = uint32(v)
		} else {
			logger.Printf("invalid %sMAP_SEED=%q: %v", envPrefix, raw, err)
		}
	}
	envBool("AUTO_RANDOMIZE", &c.AutoRandomize, logger)
	envInt("TICK_RATE", &c.TickRate, logger)
	envInt("HEARTBEAT_MS", &c.HeartbeatMs, logger)
	envInt("SNAPSHOT_MS", &c.SnapshotMs, logger)
	if raw, ok := lookup("POSITION_RATE"); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.PositionRate = v
		} else {
			logger.Printf("invalid %sPOSITION_RATE=%q: %v", envPrefix, raw, err)
		}
	}
	envInt("PROBE_INTERVAL_MS", &c.ProbeIntervalMs, logger)
	envInt("REACH_TIMEOUT_MS", &c.ReachTimeoutMs, logger)
	envString("DIAG_ADDR", &c.DiagAddr)
	envBool("DISPLAY", &c.Display, logger)
	envBool("PPROF", &c.Pprof, logger)
	if raw, ok := lookup("LOG_SINKS"); ok {
		c.LogSinks = splitList(raw)
	}
	envString("LOG_JSON_PATH", &c.LogJSONPath)
	envString("LOG_MIN_SEVERITY", &c.LogMinSeverity)
}

func lookup(name string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

func envString(name string, dst *string) {
	if raw, ok := lookup(name); ok {
		*dst = raw
	}
}

func envInt(name string, dst *int, logger telemetry.Logger) {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Printf("invalid %s%s=%q: %v", envPrefix, name, raw, err)
		return
	}
	*dst = v
}

func envBool(name string, dst *bool, logger telemetry.Logger) {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Printf("invalid %s%s=%q: %v", envPrefix, name, raw, err)
		return
	}
	*dst = v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type field struct {
	name  string
	value int
}

// Validate reports every problem at once, each wrapped in ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.PlayerID != 0 && c.PlayerID != 1 {
		bad("playerId must be 0 or 1, got %d", c.PlayerID)
	}
	if c.Transport != TransportUDP && c.Transport != TransportWS {
		bad("transport must be %q or %q, got %q", TransportUDP, TransportWS, c.Transport)
	}
	if c.Listen == "" && c.Peer == "" {
		bad("listen or peer address required")
	}
	if c.Rows < 5 || c.Cols < 5 {
		bad("grid must be at least 5x5, got %dx%d", c.Rows, c.Cols)
	}
	if c.Rows > 255 || c.Cols > 255 {
		bad("grid coordinates must fit a byte, got %dx%d", c.Rows, c.Cols)
	}
	for _, f := range []field{
		{"fuseMs", c.FuseMs},
		{"explosionMs", c.ExplosionMs},
		{"blastRadius", c.BlastRadius},
		{"lives", c.Lives},
		{"maxBombs", c.MaxBombs},
		{"maxExplosionCells", c.MaxExplosionCells},
		{"tickRate", c.TickRate},
		{"heartbeatMs", c.HeartbeatMs},
		{"reachTimeoutMs", c.ReachTimeoutMs},
	} {
		if f.value <= 0 {
			bad("%s must be positive, got %d", f.name, f.value)
		}
	}
	if c.FuseMs > 65535 {
		bad("fuseMs must fit 16 bits, got %d", c.FuseMs)
	}
	for _, f := range []field{
		{"postHitInvulMs", c.PostHitInvulMs},
		{"spawnInvulMs", c.SpawnInvulMs},
		{"snapshotMs", c.SnapshotMs},
		{"probeIntervalMs", c.ProbeIntervalMs},
	} {
		if f.value < 0 {
			bad("%s must not be negative, got %d", f.name, f.value)
		}
	}
	if c.PositionRate <= 0 {
		bad("positionRate must be positive, got %v", c.PositionRate)
	}
	switch c.LogMinSeverity {
	case "debug", "info", "warn", "error":
	default:
		bad("unknown logMinSeverity %q", c.LogMinSeverity)
	}
	for _, s := range c.LogSinks {
		if s != "console" && s != "json" {
			bad("unknown log sink %q", s)
		}
	}
	return errors.Join(errs...)
}

// Node converts c into the node package's configuration.
func (c Config) Node() node.Config {
	nc := node.DefaultConfig()
	nc.PlayerID = uint8(c.PlayerID)
	nc.Host = c.Host
	nc.Rows = c.Rows
	nc.Cols = c.Cols
	nc.Engine = engine.Config{
		MaxBombs:          c.MaxBombs,
		MaxExplosionCells: c.MaxExplosionCells,
		Fuse:              ms(c.FuseMs),
		ExplosionVisible:  ms(c.ExplosionMs),
		Radius:            c.BlastRadius,
		PostHitInvul:      ms(c.PostHitInvulMs),
		SpawnInvul:        ms(c.SpawnInvulMs),
		Lives:             c.Lives,
	}
	nc.MapSeed = c.MapSeed
	nc.AutoRandomize = c.AutoRandomize
	nc.TickRate = c.TickRate
	nc.HeartbeatInterval = ms(c.HeartbeatMs)
	nc.SnapshotInterval = ms(c.SnapshotMs)
	nc.PositionRate = c.PositionRate
	nc.ReachTimeout = ms(c.ReachTimeoutMs)
	return nc
}

// ProbeInterval is how often the node probes peer reachability.
func (c Config) ProbeInterval() time.Duration {
	return ms(c.ProbeIntervalMs)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
