package handlers

import (
	"net/http"
	"strings"

	"pixshop/internal/domain"
	"pixshop/internal/providers/genai"
)

type extractStyleRequest struct {
	Image string `json:"image"`
	Fast  bool   `json:"fast"`
}

type saveStyleRequest struct {
	Style domain.RoutedStyle `json:"style"`
	Panel string             `json:"panel"`
}

type refineRequest struct {
	Prompt string `json:"prompt"`
	Fast   bool   `json:"fast"`
}

type refineResponse struct {
	Prompt string `json:"prompt"`
}

func (a *App) ExtractStyle(w http.ResponseWriter, r *http.Request) {
	var req extractStyleRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", domain.ErrImageRequired.Error())
		return
	}
	img, err := genai.ParseDataURL(req.Image)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}
	style, err := a.Prompts.ExtractStyle(r.Context(), img, req.Fast)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, style)
}

// SaveStyle stores an extracted style. A non-empty panel overrides the
// router's choice.
func (a *App) SaveStyle(w http.ResponseWriter, r *http.Request) {
	var req saveStyleRequest
	if !a.decode(w, r, &req) {
		return
	}
	var panel domain.Panel
	if req.Panel != "" {
		p, ok := domain.ParsePanel(req.Panel)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown panel")
			return
		}
		panel = p
	}
	p, err := a.Presets.SaveRouted(r.Context(), req.Style, panel)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, p)
}

func (a *App) RefinePrompt(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !a.decode(w, r, &req) {
		return
	}
	out, err := a.Prompts.Refine(r.Context(), req.Prompt, req.Fast)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, refineResponse{Prompt: out})
}
