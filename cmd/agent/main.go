package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/miaoagent/internal/config"
	"github.com/gluk-w/miaoagent/internal/database"
	"github.com/gluk-w/miaoagent/internal/fulltunnel"
	"github.com/gluk-w/miaoagent/internal/logging"
	"github.com/gluk-w/miaoagent/internal/status"
	"github.com/gluk-w/miaoagent/internal/tunnelmgr"
)

func main() {
	config.Load()

	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("database init: %v", err)
	}

	mgr := tunnelmgr.NewManager(tunnelmgr.SaveConfigs)

	savedConfigs, err := tunnelmgr.LoadConfigs()
	if err != nil {
		log.Printf("[agent] failed to load persisted tunnel configs: %v", err)
	}
	if err := mgr.ApplyConfig(savedConfigs); err != nil {
		log.Printf("[agent] initial ApplyConfig failed: %v", err)
	}

	ftController := fulltunnel.NewController(mgr)
	savedSets, err := fulltunnel.LoadSets()
	if err != nil {
		log.Printf("[agent] failed to load persisted tunnel sets: %v", err)
	}
	ftController.SyncFromConfig(savedSets)

	router := status.NewRouter(mgr, ftController)
	srv := &http.Server{
		Addr:    config.Cfg.StatusAddr,
		Handler: router,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[agent] status server listening on %s", config.Cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[agent] status server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("[agent] shutting down")

	mgr.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[agent] status server shutdown error: %v", err)
	}

	log.Println("[agent] stopped")
}
