package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"espnow-arena/node/internal/config"
	"espnow-arena/node/internal/diag"
	"espnow-arena/node/internal/display"
	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/link/udp"
	"espnow-arena/node/internal/link/ws"
	"espnow-arena/node/internal/node"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
	loggingSinks "espnow-arena/node/logging/sinks"
)

type Options struct {
	Logger     telemetry.Logger
	ConfigPath string
	EnvFiles   []string
	// Stdout receives the console event sink; nil means os.Stdout.
	Stdout io.Writer
}

// Run loads the configuration and runs a node until ctx is done, the link
// fails to start, or the display is quit.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	cfg, err := config.Load(opts.ConfigPath, logger, opts.EnvFiles...)
	if err != nil {
		return err
	}
	return RunWithConfig(ctx, cfg, opts)
}

func RunWithConfig(ctx context.Context, cfg config.Config, opts Options) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logConfig, sinks, err := buildSinks(cfg, stdout)
	if err != nil {
		return err
	}
	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := &logging.Metrics{}
	telemetryMetrics := telemetry.WrapMetrics(metrics)

	l, peerAddr, err := newLink(cfg, telemetryLogger, telemetryMetrics)
	if err != nil {
		return err
	}
	defer l.Close()

	n := node.New(cfg.Node(), l, peerAddr, node.Deps{
		Logger:    telemetryLogger,
		Metrics:   telemetryMetrics,
		Publisher: router,
	})
	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start link: %w", err)
	}
	telemetryLogger.Printf("node %s started as player %d (host=%t, transport=%s, listen=%s, peer=%q)",
		n.ID(), cfg.PlayerID, cfg.Host, cfg.Transport, cfg.Listen, cfg.Peer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		n.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		n.RunProbes(ctx, cfg.ProbeInterval())
	}()

	if cfg.DiagAddr != "" {
		handler := diag.NewHandler(n, diag.Config{
			Logger:      telemetryLogger,
			Metrics:     metrics,
			RouterStats: router.Stats,
			TickRate:    cfg.TickRate,
			Heartbeat:   time.Duration(cfg.HeartbeatMs) * time.Millisecond,
			Timeout:     time.Duration(cfg.ReachTimeoutMs)*time.Millisecond + 5*time.Second,
			Profiler:    cfg.Pprof,
		})
		srv := diag.NewServer(cfg.DiagAddr, handler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			telemetryLogger.Printf("diagnostics listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				telemetryLogger.Printf("diagnostics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var runErr error
	if cfg.Display {
		runErr = display.Run(ctx, n, display.DefaultRefresh)
		cancel()
	} else {
		<-ctx.Done()
	}
	wg.Wait()
	telemetryLogger.Printf("node %s stopped at round %d, scores %v", n.ID(), n.Round(), n.Status().Scores)
	return runErr
}

// buildSinks translates the configured sink names into router settings.
// The console sink is withheld while the terminal display owns stdout.
func buildSinks(cfg config.Config, stdout io.Writer) (logging.Config, map[string]logging.Sink, error) {
	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = append([]string(nil), cfg.LogSinks...)
	logConfig.MinimumSeverity = logging.ParseSeverity(cfg.LogMinSeverity)
	logConfig.JSON.FilePath = cfg.LogJSONPath
	logConfig.Fields = map[string]any{"player": cfg.PlayerID}

	sinks := map[string]logging.Sink{}
	if logConfig.HasSink("console") && !cfg.Display {
		sinks["console"] = loggingSinks.NewConsole(stdout)
	}
	if logConfig.HasSink("json") {
		var w io.Writer = stdout
		if path := logConfig.JSON.FilePath; path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return logging.Config{}, nil, fmt.Errorf("open json log %s: %w", path, err)
			}
			w = f
		} else if cfg.Display {
			w = io.Discard
		}
		sinks["json"] = loggingSinks.NewJSON(w, logConfig.JSON.FlushInterval)
	}
	return logConfig, sinks, nil
}

// newLink opens the configured transport. For WebSocket the side with a
// peer address dials and the other listens.
func newLink(cfg config.Config, logger telemetry.Logger, metrics telemetry.Metrics) (link.Link, link.Addr, error) {
	peerAddr, err := link.ParseAddr(cfg.Peer)
	if err != nil {
		return nil, link.Addr{}, err
	}
	switch cfg.Transport {
	case config.TransportWS:
		wsCfg := ws.Config{Logger: logger, Metrics: metrics}
		if cfg.Peer != "" {
			wsCfg.DialAddr = cfg.Peer
		} else {
			wsCfg.ListenAddr = cfg.Listen
		}
		return ws.New(wsCfg), peerAddr, nil
	default:
		l, err := udp.Listen(cfg.Listen, logger, metrics)
		if err != nil {
			return nil, link.Addr{}, fmt.Errorf("failed to open udp link: %w", err)
		}
		return l, peerAddr, nil
	}
}
