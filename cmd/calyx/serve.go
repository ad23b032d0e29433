package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
	gatewayserver "github.com/sanchita-suni/Calyx/pkg/gateway/server"
)

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	buildRuntime func(context.Context, config.Config, *slog.Logger) (*wiring, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		loadConfig:   config.LoadFromEnv,
		buildRuntime: buildRuntime,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newServeCmd(stderr io.Writer, deps serveDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /ws/chat, /ws/twilio and the report downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stderr, deps)
		},
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runServe(ctx context.Context, stderr io.Writer, deps serveDeps) error {
	if deps.loadConfig == nil || deps.buildRuntime == nil {
		return errors.New("missing serve dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, stderr)
	slog.SetDefault(logger)

	w, err := deps.buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer w.close()

	m := metrics.New("")
	gw := gatewayserver.New(cfg, logger, gatewayserver.Options{
		Runtime:     w.runtime,
		Metrics:     m,
		ReadyChecks: w.checks,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting calyx",
		"addr", cfg.Addr,
		"llm_provider", cfg.LLMProvider,
		"public_domain", cfg.PublicDomain,
		"telephony", cfg.TwilioConfigured(),
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.Lifecycle().SetDraining(true)
	warned := gw.Sessions().WarnAll("server_draining", "The server is restarting. Please reconnect shortly.")
	logger.Info("draining live sessions", "sessions", warned)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Sessions().Wait(waitCtx) {
		canceled := gw.Sessions().CancelAll()
		logger.Warn("grace period elapsed, canceled live sessions", "sessions", canceled)
		gw.Sessions().Wait(context.Background())
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("calyx stopped")
	return nil
}
