package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/codexserver/chat"
	"github.com/wfunc/codexserver/config"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/lobby"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/monitor"
	"github.com/wfunc/codexserver/persistence"
	"github.com/wfunc/codexserver/server"
	"github.com/wfunc/codexserver/services"
	"github.com/wfunc/codexserver/timer"
)

func main() {
	logger.Init("info")

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	history := services.NewHistoryService(db)

	mon := monitor.NewMonitor("codex")
	if cfg.Server.MetricsAddress != "" {
		if err := mon.StartServer(cfg.Server.MetricsAddress); err != nil {
			logger.Log.Fatalf("Failed to start metrics server: %v", err)
		}
	}
	if cfg.Server.HealthAddress != "" {
		if err := mon.StartHealth(cfg.Server.HealthAddress); err != nil {
			logger.Log.Fatalf("Failed to start health server: %v", err)
		}
	}

	pool, err := events.NewPool(cfg.Events.PoolSize, mon)
	if err != nil {
		logger.Log.Fatalf("Failed to start event pool: %v", err)
	}
	defer pool.Stop()

	timers := timer.NewTimerManager()
	defer timers.Stop()

	rooms := chat.NewRooms(cfg.Chat.History, pool)
	orch := lobby.NewOrchestrator(cfg, lobby.Deps{
		Dispatcher: pool,
		Scheduler:  timers,
		Metrics:    mon,
		Recorder:   history,
		OnPrune:    rooms.Drop,
	})
	svc := services.NewCodexService(orch, rooms, nil, history)

	// Initialize Game Server
	gameServer, err := server.NewGameServer(server.Options{
		Addr:      cfg.Server.HTTPAddress,
		RPCAddr:   cfg.Server.RPCAddress,
		Heartbeat: cfg.Server.HeartbeatInterval,
		Service:   svc,
		Timers:    timers,
		Metrics:   mon,
	})
	if err != nil {
		logger.Log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Log.Info("Shutting down.")
		mon.SetServing(false)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gameServer.Shutdown(ctx)
		mon.Stop(ctx)
	}()

	// Start Server
	logger.Log.Infof("Starting codex server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
