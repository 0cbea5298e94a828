package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pixshop/internal/catalog"
	"pixshop/internal/composer"
	"pixshop/internal/dispatch"
	"pixshop/internal/domain"
	"pixshop/internal/preview"
	"pixshop/internal/providers/genai"
	"pixshop/pkg/zip"
)

type composeRequest struct {
	Panel             string `json:"panel"`
	Preset            string `json:"preset"`
	Prompt            string `json:"prompt"`
	Image             string `json:"image"`
	Mask              string `json:"mask"`
	AspectRatio       string `json:"aspectRatio"`
	Chaos             bool   `json:"chaos"`
	BatchSize         int    `json:"batchSize"`
	StackEffect       bool   `json:"stackEffect"`
	ForceNew          bool   `json:"forceNew"`
	MatchShape        bool   `json:"matchShape"`
	Advanced          bool   `json:"advanced"`
	RoutedApplyPrompt string `json:"routedApplyPrompt"`
	Fast              bool   `json:"fast"`
}

type generateResponse struct {
	Request *domain.GenerationRequest `json:"request"`
	Images  []string                  `json:"images"`
	Text    []string                  `json:"text,omitempty"`
	Saved   []string                  `json:"saved,omitempty"`
	State   domain.PanelState         `json:"state"`
	History []domain.PanelState       `json:"history"`
}

type previewRequest struct {
	Prompt string `json:"prompt"`
	Fast   bool   `json:"fast"`
}

type previewResponse struct {
	Image *string `json:"image"`
}

// input decodes the body into composer input for the task in the URL. It
// answers the client itself when the payload is unusable.
func (a *App) input(w http.ResponseWriter, r *http.Request) (composer.Input, bool) {
	task, ok := domain.ParseTaskType(chi.URLParam(r, "task"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown task")
		return composer.Input{}, false
	}
	var req composeRequest
	if !a.decode(w, r, &req) {
		return composer.Input{}, false
	}
	in := composer.Input{
		Task:              task,
		Preset:            req.Preset,
		FreeText:          req.Prompt,
		AspectRatio:       req.AspectRatio,
		Chaos:             req.Chaos,
		BatchSize:         req.BatchSize,
		StackEffect:       req.StackEffect,
		ForceNew:          req.ForceNew,
		MatchShape:        req.MatchShape,
		Advanced:          req.Advanced,
		RoutedApplyPrompt: req.RoutedApplyPrompt,
		Fast:              req.Fast,
	}
	if req.Panel != "" {
		p, ok := domain.ParsePanel(req.Panel)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown panel")
			return composer.Input{}, false
		}
		in.Panel = p
	}
	if in.Image, ok = a.dataURL(w, req.Image, "image"); !ok {
		return composer.Input{}, false
	}
	if in.Mask, ok = a.dataURL(w, req.Mask, "mask"); !ok {
		return composer.Input{}, false
	}
	return in, true
}

func (a *App) dataURL(w http.ResponseWriter, raw, field string) (*genai.ImageInput, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	img, err := genai.ParseDataURL(raw)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_"+field, err.Error())
		return nil, false
	}
	return &img, true
}

// Compose returns the request a generation would dispatch, without calling
// the generation service for images.
func (a *App) Compose(w http.ResponseWriter, r *http.Request) {
	in, ok := a.input(w, r)
	if !ok {
		return
	}
	req, err := a.Composer.Compose(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, req)
}

// Generate runs one compose and dispatch cycle. Each call is its own panel
// session, so stacking across calls is done by sending the previous result
// back as the image. With ?format=zip the images are returned as an archive.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	in, ok := a.input(w, r)
	if !ok {
		return
	}
	session, err := dispatch.NewSession(dispatch.Options{
		Composer:    a.Composer,
		Generator:   a.Images,
		Output:      a.Output,
		Concurrency: a.Concurrency,
		Logger:      a.Logger,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := session.Run(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "zip" {
		a.zip(w, r, in.Task, out.Results)
		return
	}

	resp := generateResponse{
		Request: out.Request,
		Images:  make([]string, 0, len(out.Results)),
		Saved:   out.Saved,
		State:   out.State,
		History: out.History,
	}
	for _, res := range out.Results {
		resp.Images = append(resp.Images, res.Image.DataURL())
		if res.Text != "" {
			resp.Text = append(resp.Text, res.Text)
		}
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) zip(w http.ResponseWriter, r *http.Request, task domain.TaskType, results []genai.ImageResult) {
	now := time.Now().UTC()
	files := make([]zip.File, 0, len(results))
	for i, res := range results {
		files = append(files, zip.File{
			Name:     fmt.Sprintf("pixshop_%s_%d%s", task, i+1, res.Image.Extension()),
			Data:     res.Image.Data,
			Modified: now,
		})
	}
	data, err := zip.Archive(files)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="pixshop_%s_%s.zip"`, task, now.Format("20060102_150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Preview renders one preview immediately. Failures yield a null image.
func (a *App) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !a.decode(w, r, &req) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		a.json(w, http.StatusOK, previewResponse{})
		return
	}
	reg := a.Catalog
	if reg == nil {
		reg = catalog.MustDefault()
	}
	img := preview.Render(r.Context(), a.Images, reg.Protocol(catalog.ProtocolPreview), prompt, req.Fast, a.Logger)
	if img == nil {
		a.json(w, http.StatusOK, previewResponse{})
		return
	}
	url := img.DataURL()
	a.json(w, http.StatusOK, previewResponse{Image: &url})
}
