// Package internal serves an HTML view of the Badger store for local debugging.
package internal

import (
	"chat-relay/infrastructure/storage"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const (
	defaultPrefix = "room:"
	defaultLimit  = 200
)

type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Limit  int
	Items  []storage.Row
	Stats  map[string]any
}

type DebugServer struct {
	log    *slog.Logger
	db     *badger.DB
	stats  StatsProvider
	port   int
	tmpl   *template.Template
	server *http.Server
}

func NewDebugServer(log *slog.Logger, db *badger.DB, port int, stats StatsProvider) *DebugServer {
	d := &DebugServer{
		log:   log,
		db:    db,
		stats: stats,
		port:  port,
		tmpl:  template.Must(template.ParseFS(templatesFS, "inspect.html")),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", d.inspect)
	d.server = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d
}

func (d *DebugServer) Handler() http.Handler { return d.server.Handler }

// GET /inspect?prefix=msg:&limit=50
func (d *DebugServer) inspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			limit = n
		}
	}

	data := PageData{Prefix: prefix, Limit: limit, Stats: map[string]any{}}
	if d.stats != nil {
		data.Stats = d.stats()
	}
	items, err := storage.Scan(d.db, prefix, limit)
	if err != nil {
		d.log.Warn("Inspect scan failed", "prefix", prefix, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data.Items = items

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.Execute(w, data); err != nil {
		d.log.Warn("Inspect render failed", "error", err)
	}
}

// Run serves until ctx is canceled.
func (d *DebugServer) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		d.log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", d.port))
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return d.server.Shutdown(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("debug server: %w", err)
	}
}
