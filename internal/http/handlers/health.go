package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status  string `json:"status"`
	Presets string `json:"presets"`
	Count   int    `json:"count"`
}

// Health reports whether the preset store answers. An unreachable store
// yields 503 so load balancers stop routing here.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	items, err := a.Presets.Load(ctx)
	if err != nil {
		a.logger().Warn().Err(err).Msg("health check: preset store unavailable")
		a.json(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Presets: "unavailable"})
		return
	}
	a.json(w, http.StatusOK, healthResponse{Status: "ok", Presets: "ok", Count: len(items)})
}
