package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inputlink/internal/config"
	"inputlink/internal/metrics"
	"inputlink/internal/network"
	"inputlink/internal/script"
	"inputlink/internal/stream"
)

func sendCmd(g *globals) *cobra.Command {
	var (
		scriptPath  string
		metricsAddr string
		linger      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Replay a YAML event script to the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			f, err := os.Open(scriptPath)
			if err != nil {
				return err
			}
			steps, err := script.Load(f)
			f.Close()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if metricsAddr == "" && cfg.Metrics.Enabled {
				metricsAddr = cfg.Metrics.ListenAddr
			}
			var m *metrics.Sender
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector())
				m = metrics.NewSender(metrics.WithRegistry(reg))
				srv := serveMetrics(metricsAddr, reg, logger)
				defer srv.Close()
			}

			return runSend(ctx, cfg, logger, m, steps, linger)
		},
	}

	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "YAML event script")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&linger, "linger", 2*time.Second, "how long to wait for queued events to drain before stopping")
	cmd.MarkFlagRequired("script")
	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func newDialer(cfg *config.Config, logger *zap.Logger) network.Dialer {
	if cfg.Host.Transport == config.TransportWS {
		return &network.WSDialer{Path: cfg.Host.WSPath, Timeout: cfg.ConnectTimeout(), Logger: logger}
	}
	return &network.TCPDialer{Timeout: cfg.ConnectTimeout(), SendBuffer: cfg.Host.SendBuffer, Logger: logger}
}

func runSend(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Sender, steps []script.Step, linger time.Duration) error {
	key, err := cfg.KeyBytes()
	if err != nil {
		return err
	}
	iv, err := cfg.IVBytes()
	if err != nil {
		return err
	}

	s := stream.New(
		stream.WithLogger(logger),
		stream.WithMetrics(m),
		stream.WithDialer(newDialer(cfg, logger)),
		stream.WithGeneration(cfg.Host.Generation),
		stream.WithQueueCapacity(cfg.Stream.QueueCapacity),
		stream.WithPort(cfg.Host.Port),
	)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	onTerminated := stream.ListenerFunc(func(err error) {
		cancel(err)
	})

	if err := s.Init(cfg.Host.Address, onTerminated, key, iv); err != nil {
		return err
	}
	defer s.Destroy()

	if err := s.Start(ctx); err != nil {
		return err
	}
	logger.Info("replaying script", zap.String("session", s.ID()), zap.Int("steps", len(steps)))

	if err := script.Play(ctx, steps, s.Send); err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return fmt.Errorf("stream failed: %w", cause)
		}
		return err
	}

	waitDrained(ctx, s, linger)
	if err := s.Stop(); err != nil {
		logger.Warn("stop", zap.Error(err))
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return fmt.Errorf("stream failed: %w", cause)
	}
	logger.Info("script finished", zap.Int("unsent", s.Pending()))
	return nil
}

// waitDrained polls until the queue is empty, ctx ends or timeout passes.
func waitDrained(ctx context.Context, s *stream.Session, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for s.Pending() > 0 {
		select {
		case <-tick.C:
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
