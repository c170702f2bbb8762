package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"peersync/internal/config"
	"peersync/internal/coordinator"
	"peersync/internal/credentials"
	"peersync/internal/discovery"
	"peersync/internal/lib/logger"
	"peersync/internal/lib/logger/sl"
	"peersync/internal/registry"
	"peersync/internal/session"
)

func main() {
	cfg := config.MustLoadCoordinator()

	log := logger.Setup(cfg.Env, os.Stdout)

	log.Info("starting coordinator",
		slog.String("env", cfg.Env),
		slog.String("listen", cfg.Listen),
	)

	store, err := credentials.Load(cfg.CredentialsFile)
	if err != nil {
		log.Error("failed to load credentials", sl.Err(err))
		os.Exit(1)
	}
	log.Info("credentials loaded", slog.Int("users", store.Len()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine := coordinator.NewEngine(session.NewDirectory(), registry.New(), store, nil, log)
	srv := coordinator.NewServer(engine, coordinator.Config{
		Listen:           cfg.Listen,
		BufferSize:       cfg.BufferSize,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		SweepInterval:    cfg.SweepInterval,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
	}, log)

	if cfg.MDNS.Enabled {
		if adv := advertise(cfg, log); adv != nil {
			defer adv.Shutdown()
		}
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("coordinator stopped", sl.Err(err))
		os.Exit(1)
	}

	log.Info("coordinator shutdown complete")
}

// advertise announces the coordinator over mDNS. Failure is not fatal.
func advertise(cfg *config.Coordinator, log *slog.Logger) *discovery.Advertiser {
	_, portStr, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		log.Warn("mDNS disabled: bad listen address", sl.Err(err))
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		log.Warn("mDNS disabled: listen address needs a fixed port", slog.String("listen", cfg.Listen))
		return nil
	}

	adv, err := discovery.Advertise(cfg.MDNS.Instance, port, log)
	if err != nil {
		log.Warn("mDNS advertisement failed", sl.Err(err))
		return nil
	}
	return adv
}
