package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tellerdesk/internal/bootstrap"
	"tellerdesk/internal/domain"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer services.Store.Close()

	if err := ensureWorkstations(ctx, services); err != nil {
		return err
	}

	services.Pipeline.Start()
	defer services.Pipeline.Stop()

	if err := services.MQTT.Connect(); err != nil {
		return err
	}
	defer services.MQTT.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", services.Hub)
	server := &http.Server{Addr: services.Config.Push.ListenAddr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		logger.Info("dashboard endpoint listening", "addr", services.Config.Push.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// ensureWorkstations seeds a default desk on first run so a fresh install
// can talk to its paired device without manual registration.
func ensureWorkstations(ctx context.Context, services bootstrap.Services) error {
	existing, err := services.Store.Workstations(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return services.Store.UpsertWorkstation(ctx, domain.Workstation{
		ID:       "WS0001",
		DeviceID: "RP0001",
		Location: "Front Desk",
		Active:   true,
	})
}
