// Command sfu is the coordination-plane server entry point: it resolves
// configuration, wires the media-worker dispatch, room registry, monitor
// dispatch, and ServerFacade, then serves until an interrupt signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hocman2/sfu-coordinator/internal/config"
	"github.com/hocman2/sfu-coordinator/internal/dispatch"
	"github.com/hocman2/sfu-coordinator/internal/logging"
	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
	"github.com/hocman2/sfu-coordinator/internal/monitor"
	"github.com/hocman2/sfu-coordinator/internal/room"
	"github.com/hocman2/sfu-coordinator/internal/server"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

func loadDotenv() {
	for _, path := range []string{".env", "../../.env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func main() {
	loadDotenv()

	if err := logging.Initialize(os.Getenv("ENV") != "production"); err != nil {
		panic(err)
	}

	cfg, err := config.ParseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		logging.Fatal(context.Background(), "invalid configuration", zap.Error(err))
		return
	}
	if cfg.TLSModeInvalid() {
		logging.Error(context.Background(), "server: "+cfg.TLSModeError())
	}
	logging.Info(context.Background(), "resolved configuration",
		zap.String("monitoring", string(cfg.Monitoring)),
		zap.Int("port", cfg.Port),
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Int("consumers_per_worker", cfg.Consumers),
		zap.Bool("public_ip_set", cfg.PublicIP != ""),
		zap.Bool("tls_enabled", cfg.TLSEnabled()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sink server.EventSink
	if cfg.Monitoring != config.MonitoringNone {
		addr := ":" + strconv.Itoa(config.MonitorFixedPort)
		d, err := monitor.Initialize(ctx, addr)
		if err != nil {
			logging.Error(ctx, "monitor dispatch failed to start; continuing without monitoring", zap.Error(err))
		} else {
			sink = d.Send
			logging.Info(ctx, "monitor dispatch listening", zap.String("addr", addr))
		}
	}
	if sink == nil {
		sink = func(monitorwire.Event) {}
	}

	rd := dispatch.New(dispatch.Config{
		MaxWorkers:         cfg.MaxWorkers,
		ConsumersPerWorker: cfg.Consumers,
		PublicIP:           cfg.PublicIP,
	}, func() mediaworker.Worker { return mediaworker.NewSimWorker() })

	rooms := room.NewRegistry(rd, room.EventSink(sink))
	facade := server.New(cfg, rd, rooms, sink)

	if err := facade.Run(ctx); err != nil {
		logging.Error(context.Background(), "server exited with error", zap.Error(err))
	}
	logging.Info(context.Background(), "server shut down cleanly")
}
