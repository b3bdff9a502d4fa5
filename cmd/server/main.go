// cmd/server is the main entrypoint for a replicated log node.
//
// The role comes from WORK_MODE (master or secondary, default master), the
// log prefix from APP_NAME, and the cluster layout from config.yml.
//
// Example — one master with two secondaries:
//
//	WORK_MODE=secondary APP_NAME=secondary_1 ./server --addr :8001 --config secondary.yml
//	WORK_MODE=secondary APP_NAME=secondary_2 ./server --addr :8002 --config secondary.yml
//	WORK_MODE=master ./server --addr :8000 --config master.yml
//
// where master.yml lists the secondaries, the quorum, and the heartbeat
// interval.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"replicated-log/internal/api"
	"replicated-log/internal/cluster"
	"replicated-log/internal/config"
	"replicated-log/internal/logging"
	"replicated-log/internal/node"
	"replicated-log/internal/store"
)

func main() {
	// ── Flags & environment ────────────────────────────────────────────────
	addr := flag.String("addr", ":8000", "Listen address (host:port)")
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yml"), "Path to config.yml")
	flag.Parse()

	workMode := envOr("WORK_MODE", string(node.ModeMaster))
	mode, err := node.ParseMode(workMode)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	appName := envOr("APP_NAME", workMode)

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A secondary has no cluster to describe; it may run without a
		// config file at all.
		if mode == node.ModeSecondary && errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			log.Fatalf("FATAL: load config: %v", err)
		}
	}

	logger, err := logging.New(appName, cfg.LogFile)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// ── Storage & coordinator ──────────────────────────────────────────────
	storage := store.NewLog()

	var coordinator *node.Coordinator
	if mode == node.ModeMaster {
		view := cluster.NewView(cfg.Secondaries, cfg.Quorum, cfg.AliveLimit, cfg.SuspectedLimit)
		replicator := cluster.NewReplicator(view, cfg.MaxReplicationAttempts, logger)
		monitor := cluster.NewMonitor(view, cfg.HeartbeatInterval(), logger)
		coordinator = node.NewMaster(storage, view, replicator, monitor, logger)
	} else {
		coordinator = node.NewSecondary(storage, logger)
	}

	coordinator.Start()

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(logger), api.Recovery(logger))

	handler := api.NewHandler(coordinator, appName)
	handler.Register(router)

	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	// Listen for SIGINT/SIGTERM and give in-flight requests 15s to complete.
	go func() {
		logger.Infof("node %s (%s) listening on %s, %d secondaries, quorum %d",
			appName, mode, *addr, len(cfg.Secondaries), cfg.Quorum)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("shutting down node %s", appName)
	coordinator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
