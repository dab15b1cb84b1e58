package metrics

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

var indexPage = template.Must(template.New("index").Parse(`<html><body><h1>{{.Title}}</h1><ul>
{{range .Paths}}<li><a href="{{.}}">{{.}}</a></li>
{{end}}</ul></body></html>`))

// NewServeMux serves /metrics plus the extra routes (health probes, for
// a worker with no API surface) and an index page linking them. Route
// keys are plain paths.
func NewServeMux(title string, routes map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	paths := []string{"/metrics"}
	mux.Handle("GET /metrics", Handler())
	for path, h := range routes {
		mux.Handle("GET "+path, h)
		paths = append(paths, path)
	}
	slices.Sort(paths)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = indexPage.Execute(w, struct {
			Title string
			Paths []string
		}{title, paths})
	})
	return mux
}

// StartServer listens on port in the background and returns its shutdown
// function.
func StartServer(port int, title string, routes map[string]http.Handler) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewServeMux(title, routes),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	log := slog.Default().With("component", "metrics-server", "title", title)
	go func() {
		log.Info("metrics server listening", "addr", server.Addr, "routes", len(routes)+1)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
