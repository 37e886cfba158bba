// cmd/worker/startup.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"familytree-backend/pkg/container"
)

type healthCheck struct {
	name string
	fn   func(context.Context) error
}

// startServices chạy health checks rồi mở health/metrics endpoint
func startServices(c *container.Container) error {
	log.Info().Msg("🚀 Family Tree Worker Starting...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	checks := []healthCheck{
		{"Redis Connection", c.Cache.Ping},
	}
	if c.DB != nil {
		checks = append(checks, healthCheck{"Database", c.DB.HealthCheck})
	}

	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			return fmt.Errorf("%s failed: %w", check.name, err)
		}
		log.Info().Str("check", check.name).Msg("✓ OK")
	}

	go startHealthCheckServer(c)
	return nil
}

// startHealthCheckServer: /health, /ready và /metrics cho worker
func startHealthCheckServer(c *container.Container) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": "familytree-worker"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := c.HealthCheck(r.Context())
		status := http.StatusOK
		for _, v := range checks {
			if v != "ok" && v != "disabled" {
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := c.Config.Worker.HealthCheckAddress
	log.Info().Str("addr", addr).Msg("[Health] Starting health check server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("[Health] Failed to start")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
