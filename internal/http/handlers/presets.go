package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pixshop/internal/domain"
	"pixshop/internal/events"
	"pixshop/internal/presets"
)

const sseHeartbeat = 25 * time.Second

type presetListResponse struct {
	Items []domain.StylePreset `json:"items"`
}

type smartSaveRequest struct {
	Prompt string `json:"prompt"`
	Fast   bool   `json:"fast"`
}

func (a *App) ListPresets(w http.ResponseWriter, r *http.Request) {
	var panel domain.Panel
	if raw := r.URL.Query().Get("panel"); raw != "" {
		p, ok := domain.ParsePanel(raw)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown panel")
			return
		}
		panel = p
	}
	items, err := a.Presets.List(r.Context(), panel)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, presetListResponse{Items: items})
}

func (a *App) AddPreset(w http.ResponseWriter, r *http.Request) {
	var p domain.StylePreset
	if !a.decode(w, r, &p) {
		return
	}
	p.IsCustom = true
	saved, err := a.Presets.Add(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, saved)
}

func (a *App) ReplacePresets(w http.ResponseWriter, r *http.Request) {
	var items []domain.StylePreset
	if !a.decode(w, r, &items) {
		return
	}
	if err := a.Presets.Save(r.Context(), items); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ListPresets(w, r)
}

func (a *App) DeletePreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	if err := a.Presets.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearPresets deletes the whole collection. The client collects consent and
// passes it as confirm=true.
func (a *App) ClearPresets(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	err := a.Presets.Clear(r.Context(), presets.ConfirmFunc(func(context.Context, string) (bool, error) {
		return confirmed, nil
	}))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ExportPresets(w http.ResponseWriter, r *http.Request) {
	data, name, err := a.Presets.Export(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) ImportPresets(w http.ResponseWriter, r *http.Request) {
	data, ok := a.readBody(w, r)
	if !ok {
		return
	}
	res, err := a.Presets.Import(r.Context(), data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) SmartSave(w http.ResponseWriter, r *http.Request) {
	var req smartSaveRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.Presets.SmartSave(r.Context(), req.Prompt, req.Fast)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, p)
}

// PresetEvents streams change notices as server-sent events until the client
// goes away.
func (a *App) PresetEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	ch, sub := a.Presets.Bus().SubscribeChan(16)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events.PresetsUpdatedName, events.EncodeNotice(ev))
			flusher.Flush()
		}
	}
}
