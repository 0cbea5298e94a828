package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type fatalBody struct {
	Error fatalError `json:"error"`
}

type fatalError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reload  bool   `json:"reload"`
}

// Recover answers any panic with a 500 asking the client to reload.
func Recover(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				l.Error().
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("unhandled panic")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(fatalBody{Error: fatalError{
					Code:    "fatal",
					Message: "Something went wrong. Reload the page to continue.",
					Reload:  true,
				}})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
