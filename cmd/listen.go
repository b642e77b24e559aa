package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inputlink/internal/api"
	"inputlink/internal/config"
	"inputlink/internal/input"
	"inputlink/internal/metrics"
	"inputlink/internal/network"
)

func listenCmd(g *globals) *cobra.Command {
	var addr, httpAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a reference receiver that decrypts and logs incoming events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr == "" {
				addr = fmt.Sprintf(":%d", cfg.Host.Port)
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if httpAddr == "" && cfg.Metrics.Enabled {
				httpAddr = cfg.Metrics.ListenAddr
			}
			return runListen(ctx, cfg, logger, addr, httpAddr)
		},
	}

	cmd.Flags().StringVar(&addr, "listen", "", "listen address (default: :<host.port>)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve /health, /api/status and /metrics on this address (tcp transport)")
	return cmd
}

func runListen(ctx context.Context, cfg *config.Config, logger *zap.Logger, addr, httpAddr string) error {
	key, err := cfg.KeyBytes()
	if err != nil {
		return err
	}
	iv, err := cfg.IVBytes()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	recv, err := network.NewReceiver(key, iv,
		network.WithReceiverLogger(logger),
		network.WithReceiverMetrics(metrics.NewReceiver(metrics.WithRegistry(reg))),
		network.WithEventHandler(func(remote string, ev input.Event) {
			logger.Info("input", append([]zap.Field{zap.String("remote", remote)}, eventFields(ev)...)...)
		}))
	if err != nil {
		return err
	}
	defer recv.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	if cfg.Host.Transport == config.TransportWS {
		handler := api.NewServer(recv,
			api.WithLogger(logger),
			api.WithMetrics(reg),
			api.WithWebSocket(cfg.Host.WSPath)).Handler()
		logger.Info("receiver listening", zap.String("addr", ln.Addr().String()), zap.String("path", cfg.Host.WSPath))
		return serveHTTP(ctx, ln, handler)
	}

	if httpAddr != "" {
		hln, err := net.Listen("tcp", httpAddr)
		if err != nil {
			ln.Close()
			return err
		}
		handler := api.NewServer(recv, api.WithLogger(logger), api.WithMetrics(reg)).Handler()
		logger.Info("http server listening", zap.String("addr", hln.Addr().String()))
		go func() {
			if err := serveHTTP(ctx, hln, handler); err != nil {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
	}
	return recv.Serve(ctx, ln)
}

// serveHTTP serves handler on ln until ctx is cancelled.
func serveHTTP(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func eventFields(ev input.Event) []zap.Field {
	fields := []zap.Field{zap.Stringer("kind", ev.Kind)}
	switch ev.Kind {
	case input.KindMouseMove:
		fields = append(fields, zap.Int16("dx", ev.DeltaX), zap.Int16("dy", ev.DeltaY))
	case input.KindMouseButton:
		fields = append(fields, zap.Uint8("action", ev.ButtonAction), zap.Int32("button", ev.Button))
	case input.KindKey:
		fields = append(fields,
			zap.Int16("code", ev.KeyCode),
			zap.Uint8("action", ev.KeyAction),
			zap.Uint8("modifiers", ev.Modifiers))
	case input.KindGamepad:
		fields = append(fields,
			zap.Int16("controller", ev.Controller),
			zap.Uint16("buttons", ev.Buttons),
			zap.Uint8("lt", ev.LeftTrigger),
			zap.Uint8("rt", ev.RightTrigger),
			zap.Int16s("sticks", []int16{ev.LeftStickX, ev.LeftStickY, ev.RightStickX, ev.RightStickY}))
	case input.KindScroll:
		fields = append(fields, zap.Int8("clicks", ev.Clicks))
	}
	return fields
}
