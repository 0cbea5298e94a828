package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pixshop/internal/catalog"
	"pixshop/internal/composer"
	"pixshop/internal/dispatch"
	"pixshop/internal/domain"
	"pixshop/internal/infra"
	"pixshop/internal/presets"
	"pixshop/internal/providers/genai"
	"pixshop/internal/providers/prompt"
	"pixshop/internal/storage"
)

// maxBodyBytes bounds request bodies; source images travel inline as data URLs.
const maxBodyBytes = 32 << 20

type App struct {
	Presets     *presets.Service
	Prompts     *prompt.Service
	Composer    *composer.Composer
	Images      dispatch.ImageGenerator
	Catalog     *catalog.Registry
	Output      *storage.FileStore
	Concurrency int
	Logger      *infra.Logger
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func (a *App) logger() *infra.Logger {
	return infra.OrNop(a.Logger)
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (a *App) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read body")
		return nil, false
	}
	return data, true
}

// fail translates domain errors into the JSON error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		a.logger().Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		a.logger().Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	msg := err.Error()
	if status == http.StatusInternalServerError && code == "internal" {
		msg = "internal error"
	}
	a.error(w, status, code, msg)
}

func classify(err error) (int, string) {
	var verr *domain.ValidationError
	var serr *domain.StorageError
	switch {
	case domain.IsConfiguration(err):
		return http.StatusServiceUnavailable, "configuration_error"
	case domain.IsMalformed(err):
		return http.StatusBadGateway, "malformed_response"
	case errors.Is(err, domain.ErrNoImageReturned):
		return http.StatusBadGateway, "no_image_returned"
	case domain.IsService(err):
		return http.StatusBadGateway, "service_error"
	case errors.Is(err, domain.ErrInvalidImport):
		return http.StatusBadRequest, "invalid_import"
	case errors.As(err, &serr):
		return http.StatusInternalServerError, "storage_error"
	case errors.Is(err, domain.ErrNoNewRecords):
		return http.StatusConflict, "no_new_records"
	case errors.Is(err, domain.ErrNothingToExport):
		return http.StatusConflict, "nothing_to_export"
	case errors.Is(err, domain.ErrDuplicateID):
		return http.StatusConflict, "duplicate_id"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrClearDeclined):
		return http.StatusPreconditionFailed, "confirmation_required"
	case errors.Is(err, domain.ErrActionDisabled):
		return http.StatusUnprocessableEntity, "action_disabled"
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, domain.ErrEmptyPrompt),
		errors.Is(err, domain.ErrImageRequired),
		errors.Is(err, genai.ErrInvalidMask):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
