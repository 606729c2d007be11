package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	onesid "github.com/MDR-Advocacia/OneSid"
	"github.com/MDR-Advocacia/OneSid/internal/storage"
	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onesid-web: %v\n", err)
		os.Exit(1)
	}

	engine, err := onesid.NewEngine(onesid.EngineConfig{DBPath: cfg.Database.Path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "onesid-web: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	mux := newRouter(engine, cfg)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      logging(recovery(cors(cfg.Server.FrontendOrigin, mux))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("onesid-web: listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("onesid-web: %v", err)
		}
	}()

	<-done
	log.Println("onesid-web: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("onesid-web: shutdown error: %v", err)
	}
	log.Println("onesid-web: stopped")
}

func loadConfig(path string) (*storage.Config, error) {
	cfg := storage.DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
