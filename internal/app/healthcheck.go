package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/stage"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

type stageStatus struct {
	Name           string          `json:"name"`
	StepsDone      int64           `json:"steps_done"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Work           stage.WorkStats `json:"work"`
}

type statsResponse struct {
	Kernel    string           `json:"kernel"`
	Stages    []stageStatus    `json:"stages"`
	Evaluated map[string]int64 `json:"evaluated"`
}

// statsHandler reports progress and work estimates of every stage as JSON.
func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Stats endpoint hit.", "remote_addr", r.RemoteAddr)

	resp := statsResponse{Kernel: a.kernel.Name, Evaluated: a.tally.Snapshot()}
	for _, st := range a.kernel.Stages {
		resp.Stages = append(resp.Stages, stageStatus{
			Name:           st.Name(),
			StepsDone:      st.StepsDone(),
			ElapsedSeconds: st.Elapsed().Seconds(),
			Work:           st.Stats(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("Writing stats response failed", "error", err)
	}
}

// healthCheckServer initializes and runs the health check HTTP server.
func (a *App) healthCheckServer() {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring health check server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Health check server shut down gracefully.")
	return nil
}
