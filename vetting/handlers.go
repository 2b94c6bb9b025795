package vetting

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// HealthResponse reports what the service is running with.
type HealthResponse struct {
	Status         string          `json:"status"`
	ModelLoaded    bool            `json:"model_loaded"`
	ModelAccuracy  float64         `json:"model_accuracy"`
	APIsConfigured map[string]bool `json:"apis_configured"`
}

const indexPage = `<h1>URL Malware Detection API</h1>
<p>Use: GET /analyze?url=YOUR_URL</p>
<p>Example: <a href="/analyze?url=https://google.com">/analyze?url=https://google.com</a></p>
`

// Routes mounts the HTTP API for a.
func Routes(a *Analyzer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(recoverJSON)
	r.Use(allowCORS)

	r.Get("/", IndexHandler)
	r.Get("/analyze", AnalyzeHandler(a))
	r.Get("/health", HealthHandler(a))
	return r
}

func IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// AnalyzeHandler serves GET /analyze?url=...
func AnalyzeHandler(a *Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := r.URL.Query().Get("url")

		verdict, err := a.Analyze(r.Context(), rawURL)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrMissingURL) {
				status = http.StatusBadRequest
			} else {
				log.Printf("[ANALYZE] Error analyzing URL %s: %v", rawURL, err)
			}
			writeError(w, status, err.Error(), rawURL)
			return
		}

		writeJSON(w, http.StatusOK, verdict)
	}
}

// HealthHandler serves GET /health.
func HealthHandler(a *Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:        "healthy",
			ModelLoaded:   a.Model.Loaded(),
			ModelAccuracy: a.Model.Accuracy(),
			APIsConfigured: map[string]bool{
				SourceThreatList: a.ThreatList.Configured(),
				SourceScanEngine: a.ScanEngine.Configured(),
			},
		})
	}
}

// recoverJSON turns a panic during a request into a JSON 500.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Printf("[HTTP] panic serving %s: %v", r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, fmt.Sprint(rec), r.URL.Query().Get("url"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// allowCORS lets browser extensions call the API from any origin.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg, rawURL string) {
	writeJSON(w, status, ErrorResponse{Error: msg, URL: rawURL, Status: "error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
