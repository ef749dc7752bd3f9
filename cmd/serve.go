package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nightshift-games/checkpoint/internal/config"
	"github.com/nightshift-games/checkpoint/internal/model"
	"github.com/nightshift-games/checkpoint/internal/session"
)

var (
	servePort      int
	serveSessionID string
)

// sessionAPI serializes access to the controller; the engine itself is
// single-threaded by contract.
type sessionAPI struct {
	mu   sync.Mutex
	ctrl *session.Controller
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose a session over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg, "serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cat, err := initCatalog()
		if err != nil {
			return err
		}

		ctrl, err := session.NewController(cat, st, session.Options{
			SessionID:               serveSessionID,
			ResetInfractionsOnShift: cfg.Balance.ResetInfractionsOnShift,
		})
		if err != nil {
			return err
		}
		if err := ctrl.Restore(ctx); err != nil {
			return err
		}

		api := &sessionAPI{ctrl: ctrl}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.router(),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func (a *sessionAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", a.getSession)
		r.Get("/subject", a.getSubject)
		r.Get("/ledger", a.getLedger)

		// Action endpoints share one limiter so a misbehaving client
		// cannot spin the engine.
		limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(limiter))
			r.Post("/proceed", a.postProceed)
			r.Post("/query/start", a.postStartQuery)
			r.Post("/query/abort", a.postAbortQuery)
			r.Post("/scan/finish", a.postFinishScan)
			r.Post("/tick", a.postTick)
			r.Post("/answer", a.postAnswer)
			r.Post("/decision", a.postDecision)
			r.Post("/advance", a.postAdvance)
		})
	})

	return r
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *sessionAPI) getSession(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	snap := a.ctrl.Snapshot()
	phase := a.ctrl.Phase()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"phase": phase, "snapshot": snap})
}

// getSubject exposes only the fields the operator is allowed to see.
// Ground-truth attributes stay hidden until gathered through queries.
func (a *sessionAPI) getSubject(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	subject, ok := a.ctrl.CurrentSubject()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no current subject"})
		return
	}
	shift, _ := a.ctrl.CurrentShift()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    subject.ID,
		"name":  subject.Name,
		"phase": a.ctrl.Phase(),
		"shift": map[string]any{
			"index":      shift.Index,
			"policy":     shift.Policy.Base,
			"exceptions": shift.Policy.Exceptions,
		},
	})
}

func (a *sessionAPI) getLedger(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	led := a.ctrl.Ledger()
	credits := a.ctrl.CreditsRemaining()
	slots := a.ctrl.SlotCount()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"ledger":  led,
		"credits": credits,
		"slots":   slots,
	})
}

func (a *sessionAPI) postProceed(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	phase := a.ctrl.Proceed()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"phase": phase})
}

func (a *sessionAPI) postStartQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.mu.Lock()
	out := a.ctrl.StartQuery(model.CheckCategory(req.Category))
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (a *sessionAPI) postAbortQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.mu.Lock()
	out := a.ctrl.AbortQuery(model.CheckCategory(req.Category))
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (a *sessionAPI) postFinishScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.mu.Lock()
	finished := a.ctrl.FinishScan(model.CheckCategory(req.Category))
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"finished": finished})
}

func (a *sessionAPI) postTick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeltaMs int64 `json:"delta_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.mu.Lock()
	a.ctrl.Tick(req.DeltaMs)
	led := a.ctrl.Ledger()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ledger": led})
}

func (a *sessionAPI) postAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"question_id"`
		Response   string `json:"response"`
		BPM        int    `json:"bpm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.mu.Lock()
	recorded := a.ctrl.RecordInterrogationAnswer(req.QuestionID, req.Response, req.BPM)
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}

func (a *sessionAPI) postDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	decision := model.Decision(req.Decision)
	if decision != model.DecisionApprove && decision != model.DecisionDeny {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decision must be APPROVE or DENY"})
		return
	}

	a.mu.Lock()
	cons, warning, err := a.ctrl.CommitDecision(r.Context(), decision)
	a.mu.Unlock()
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consequence": cons,
		"warning":     warning,
	})
}

func (a *sessionAPI) postAdvance(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	err := a.ctrl.Advance(r.Context())
	done := a.ctrl.Done()
	index := a.ctrl.SubjectIndex()
	a.mu.Unlock()
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": done, "subject_index": index})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveSessionID, "session", "default", "session id")
	rootCmd.AddCommand(serveCmd)
}
