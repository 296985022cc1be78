package main

// Exemplo: o handler chama Service.Enforce por conta própria, antes de qualquer
// efeito colateral, em vez de depender do middleware na frente (sem proxy).

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jobboard-gateway/internal/bootstrap"
	"jobboard-gateway/internal/config"
	"jobboard-gateway/internal/logger"
	"jobboard-gateway/middleware/ratelimit"
	"jobboard-gateway/middleware/ratelimit/application"
	"jobboard-gateway/middleware/ratelimit/domain"
	"jobboard-gateway/middleware/requestid"
)

type job struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Company string `json:"company"`
}

type jobApplication struct {
	ID    int    `json:"id"`
	JobID int    `json:"jobId"`
	Owner string `json:"owner"`
}

// board é o "banco" do exemplo.
type board struct {
	mu           sync.Mutex
	jobs         []job
	applications []jobApplication
	sponsors     map[string]bool
}

type server struct {
	svc      application.Service
	identify ratelimit.IdentityFunc
	board    *board
	log      *zap.Logger
}

// enforce devolve false (e já respondeu) quando a requisição não pode seguir.
func (s *server) enforce(w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	identifier := s.identify(r)
	_, err := s.svc.Enforce(r.Context(), endpoint, identifier)
	if err == nil {
		return identifier, true
	}
	if rl, ok := domain.AsRateLimitError(err); ok {
		ratelimit.WriteRateLimited(w, rl)
		return identifier, false
	}
	s.log.Error("rate limit check failed", zap.String("request_id", requestid.FromContext(r.Context())), zap.Error(err))
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	return identifier, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) createJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.enforce(w, r, domain.EndpointCreateJob); !ok {
		return
	}
	var in job
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Title == "" {
		http.Error(w, "invalid job", http.StatusBadRequest)
		return
	}

	s.board.mu.Lock()
	in.ID = len(s.board.jobs) + 1
	s.board.jobs = append(s.board.jobs, in)
	s.board.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.enforce(w, r, domain.EndpointGeneralQuery); !ok {
		return
	}
	s.board.mu.Lock()
	out := append([]job(nil), s.board.jobs...)
	s.board.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *server) createApplication(w http.ResponseWriter, r *http.Request) {
	identifier, ok := s.enforce(w, r, domain.EndpointCreateApplication)
	if !ok {
		return
	}
	var in jobApplication
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.JobID <= 0 {
		http.Error(w, "invalid application", http.StatusBadRequest)
		return
	}

	s.board.mu.Lock()
	in.ID = len(s.board.applications) + 1
	in.Owner = identifier
	s.board.applications = append(s.board.applications, in)
	s.board.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *server) checkSponsorship(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.enforce(w, r, domain.EndpointCheckCompanySponsorship); !ok {
		return
	}
	var in struct {
		Company string `json:"company"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Company == "" {
		http.Error(w, "invalid company", http.StatusBadRequest)
		return
	}

	s.board.mu.Lock()
	sponsored := s.board.sponsors[in.Company]
	s.board.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"company": in.Company, "sponsored": sponsored})
}

func (s *server) addSponsoredCompany(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.enforce(w, r, domain.EndpointAddSponsoredCompany); !ok {
		return
	}
	var in struct {
		Company string `json:"company"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Company == "" {
		http.Error(w, "invalid company", http.StatusBadRequest)
		return
	}

	s.board.mu.Lock()
	s.board.sponsors[in.Company] = true
	s.board.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/api/jobs", s.listJobs)
	r.Post("/api/jobs", s.createJob)
	r.Post("/api/applications", s.createApplication)
	r.Post("/api/sponsorship/check", s.checkSponsorship)
	r.Post("/api/sponsorship/companies", s.addSponsoredCompany)
	return r
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "example-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, _ := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comps.Close()

	s := &server{
		svc:      comps.Service,
		identify: ratelimit.DefaultIdentity(cfg.RateLimit.OverrideHeader, cfg.RateLimit.TrustProxy, ratelimit.ContextSubject),
		board:    &board{sponsors: make(map[string]bool)},
		log:      log,
	}

	addr := cfg.Server.ExampleListenAddr

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
