package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cloudeng.io/logging/ctxlog"

	"dayscounter/internal/config"
	"dayscounter/internal/dates"
	"dayscounter/internal/ics"
	appLog "dayscounter/internal/log"
	"dayscounter/internal/model"
)

// Server exposes the date operations and the calendar export over HTTP.
type Server struct {
	cfg      *config.Config
	logger   *appLog.Logger
	exporter *ics.Exporter
	mux      *http.ServeMux

	// now is the clock used for "today"; tests replace it.
	now func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, logger *appLog.Logger, exporter *ics.Exporter) *Server {
	loc := cfg.Location()
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		exporter: exporter,
		mux:      http.NewServeMux(),
		now:      func() time.Time { return time.Now().In(loc) },
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := s.withLogger(s.mux)
	if s.basicAuthEnabled() {
		s.logger.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// withLogger attaches a request-scoped logger to the request context.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.logger.Slog().With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctxlog.WithLogger(r.Context(), l)))
	})
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dayscounter", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/diff", s.handleDiff)
	s.mux.HandleFunc("GET /api/add", s.handleAdd)
	s.mux.HandleFunc("GET /api/age", s.handleAge)
	s.mux.HandleFunc("GET /api/dayofyear", s.handleDayOfYear)
	s.mux.HandleFunc("/api/export", s.handleExport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type diffResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

type addResponse struct {
	Start  string  `json:"start"`
	Days   float64 `json:"days"`
	Result string  `json:"result"`
}

type ageResponse struct {
	Birth          string `json:"birth"`
	Today          string `json:"today"`
	AgeDays        int    `json:"age_days"`
	NextBirthday   string `json:"next_birthday,omitempty"`
	DaysToBirthday int    `json:"days_to_birthday"`
}

type dayOfYearResponse struct {
	Date      string `json:"date"`
	DayOfYear int    `json:"day_of_year"`
	LeapYear  bool   `json:"leap_year"`
}

type exportResponse struct {
	Path string `json:"path"`
}

// handleDiff: GET /api/diff?start=2024-01-01&end=2024-03-01
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	start, ok := s.dateParam(w, r, "start", false)
	if !ok {
		return
	}
	end, ok := s.dateParam(w, r, "end", false)
	if !ok {
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, diffResponse{
		Start: s.format(start),
		End:   s.format(end),
		Days:  dates.DaysBetween(start, end),
	})
}

// handleAdd: GET /api/add?start=2024-01-01&days=30
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	start, ok := s.dateParam(w, r, "start", false)
	if !ok {
		return
	}
	days, err := dates.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "days must be a finite number of at most "+strconv.Itoa(dates.MaxDays)+" days")
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, addResponse{
		Start:  s.format(start),
		Days:   days,
		Result: s.format(dates.AddDays(start, days)),
	})
}

// handleAge: GET /api/age?birth=1990-05-17[&today=2024-01-01]
func (s *Server) handleAge(w http.ResponseWriter, r *http.Request) {
	birth, ok := s.dateParam(w, r, "birth", false)
	if !ok {
		return
	}
	today, ok := s.dateParam(w, r, "today", true)
	if !ok {
		return
	}
	resp := ageResponse{
		Birth:   s.format(birth),
		Today:   s.format(today),
		AgeDays: dates.AgeInDays(birth, today),
	}
	if next, days, err := dates.NextAnniversary(birth, today); err == nil {
		resp.NextBirthday = s.format(next)
		resp.DaysToBirthday = days
	} else {
		ctxlog.Logger(r.Context()).Debug("no next anniversary", "err", err)
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// handleDayOfYear: GET /api/dayofyear[?date=2024-02-29]
func (s *Server) handleDayOfYear(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r, "date", true)
	if !ok {
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, dayOfYearResponse{
		Date:      s.format(date),
		DayOfYear: dates.DayOfYear(date),
		LeapYear:  dates.IsLeapYear(date.Year()),
	})
}

// handleExport writes the event into the configured export directory.
//
// GET|POST /api/export?title=...&date=...&description=...[&download=1]
//   - download=1 returns the .ics file as an attachment
//   - otherwise a JSON body with the written path is returned
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid form")
		return
	}
	title := r.Form.Get("title")
	if title == "" {
		writeError(ctx, w, http.StatusBadRequest, "title is required")
		return
	}
	date, ok := s.dateParam(w, r, "date", false)
	if !ok {
		return
	}
	ev := model.Event{Title: title, Date: date, Description: r.Form.Get("description")}

	if err := os.MkdirAll(s.cfg.ExportDir, 0o755); err != nil {
		ctxlog.Logger(ctx).Error("create export dir failed", "err", err, "dir", s.cfg.ExportDir)
		writeError(ctx, w, http.StatusInternalServerError, "failed to export event")
		return
	}
	path := filepath.Join(s.cfg.ExportDir, ics.FileName(ev))
	text, err := s.exporter.Export(ev, path)
	if err != nil {
		ctxlog.Logger(ctx).Error("export failed", "err", err, "path", path)
		writeError(ctx, w, http.StatusInternalServerError, "failed to export event")
		return
	}
	ctxlog.Logger(ctx).Info("event exported", "path", path)

	if r.Form.Get("download") == "1" {
		// Serve what was rendered; a concurrent export may be rewriting path.
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(text)))
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, text); err != nil {
			ctxlog.Logger(ctx).Error("failed to write calendar download", "err", err)
		}
		return
	}
	writeJSON(ctx, w, http.StatusCreated, exportResponse{Path: path})
}

// dateParam reads a date parameter in the configured layout. Optional
// parameters default to today.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request, name string, optional bool) (time.Time, bool) {
	v := r.FormValue(name)
	if v == "" {
		if optional {
			return dates.Truncate(s.now()), true
		}
		writeError(r.Context(), w, http.StatusBadRequest, name+" is required")
		return time.Time{}, false
	}
	t, err := s.cfg.ParseDate(v)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, name+": expected layout "+s.cfg.DateLayout)
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) format(t time.Time) string {
	return t.Format(s.cfg.DateLayout)
}

// writeJSON encodes v before sending the header so that an encoding
// failure still yields a 500.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		ctxlog.Logger(ctx).Error("failed to encode JSON response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		ctxlog.Logger(ctx).Error("failed to write JSON response", "err", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(ctx, w, status, errResp{Error: msg})
}
