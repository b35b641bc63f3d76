package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vicserv/zimatlan-radio/internal/relay"
)

func main() {
	cfg := relay.NewConfigFromEnv()
	log := relay.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	var sink relay.MessageSink
	if cfg.RedisURL != "" {
		redisSink, err := relay.NewRedisSink(cfg.RedisURL, cfg.RedisHistoryKey, cfg.HistoryLimit)
		if err != nil {
			log.Warnf("redis sink unavailable, continuing without it: %v", err)
		} else {
			sink = redisSink
			defer func() { _ = redisSink.Close() }()
			log.Infof("mirroring chat messages to redis list %q", cfg.RedisHistoryKey)
		}
	}

	hub := relay.NewHub(cfg, sink, log)
	go hub.Run()

	server := relay.CreateServer(cfg.Port, relay.SetupRoutes(hub))

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("chat relay listening on %s", cfg.Port)
		serverErr <- relay.StartServer(server)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-stop:
		log.Infof("received %s, shutting down", sig)
	}

	if err := relay.ShutdownServer(server, 10*time.Second, log); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		log.Warnf("hub shutdown: %v", err)
	}
}
