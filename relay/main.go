package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/relay/api"
	"taskboard/relay/feed"
	"taskboard/relay/server"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	cfg := server.DefaultConfig()
	if v := os.Getenv("HANDSHAKE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid HANDSHAKE_TIMEOUT: %v", err)
		}
		cfg.HandshakeTimeout = d
	}
	if v := os.Getenv("SESSION_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid SESSION_BUFFER: %v", err)
		}
		cfg.SessionBuffer = n
	}
	srv := server.New(cfg, logger)

	if connStr := os.Getenv("REDIS_CONNECTION_STRING"); connStr != "" {
		opts, err := redis.ParseURL(connStr)
		if err != nil {
			opts = &redis.Options{Addr: connStr}
		}
		rc := redis.NewClient(opts)
		channel := "board-events"
		if v := os.Getenv("BOARD_EVENTS_CHANNEL"); v != "" {
			channel = v
		}
		publisher := feed.NewPublisher(rc, channel, logger)
		defer publisher.Close()
		srv.Hub().AddTap(publisher.Publish)
		logger.Infof("event feed publishing to %s", channel)
	}

	adminPort := "9090"
	if v, ok := os.LookupEnv("ADMIN_PORT"); ok {
		adminPort = v
	}
	if adminPort != "" {
		e := echo.New()
		e.HideBanner = true
		notify := api.Register(e, srv, logger)
		srv.Hub().AddTap(notify)
		go func() {
			if err := e.Start(":" + adminPort); err != nil && err != http.ErrServerClosed {
				log.Fatalf("admin listener: %v", err)
			}
		}()
	}

	listenAddr := ":8080"
	if v, ok := os.LookupEnv("RELAY_PORT"); ok {
		listenAddr = ":" + v
	}
	if err := srv.Listen(listenAddr); err != nil {
		log.Fatalf("relay: %v", err)
	}
	logger.Infof("relay listening on %s", srv.Addr())
	if err := srv.Serve(context.Background()); err != nil {
		log.Fatalf("relay: %v", err)
	}
}
