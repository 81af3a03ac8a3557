package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askbi/askbi/internal/archive"
	"github.com/askbi/askbi/internal/auth"
	"github.com/askbi/askbi/internal/catalog"
	"github.com/askbi/askbi/internal/config"
	"github.com/askbi/askbi/internal/dashboard"
	"github.com/askbi/askbi/internal/explore"
	"github.com/askbi/askbi/internal/looker"
	"github.com/askbi/askbi/internal/observability"
	"github.com/askbi/askbi/internal/semantic"
)

const maxRequestBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

type Translator interface {
	Translate(ctx context.Context, req explore.TranslateRequest) (explore.Result, error)
	Answer(ctx context.Context, req explore.AnswerRequest) (string, error)
}

type DashboardSource interface {
	ListDashboards(ctx context.Context) ([]looker.DashboardRef, error)
	Dashboard(ctx context.Context, id string) (dashboard.Dashboard, error)
}

type DashboardSummarizer interface {
	Summarize(ctx context.Context, d dashboard.Dashboard, question string) (string, error)
}

type FeedbackRecorder interface {
	Record(ctx context.Context, req archive.FeedbackRequest) (archive.Recorded, error)
}

type PromptExamples interface {
	ListPromptExamples(ctx context.Context, modelExplore string) ([]catalog.PromptExample, error)
	CreatePromptExample(ctx context.Context, in catalog.CreatePromptExampleInput) (catalog.PromptExample, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Fields            semantic.Provider
	Translator        Translator
	Dashboards        DashboardSource
	Summarizer        DashboardSummarizer
	Feedback          FeedbackRecorder
	Prompts           PromptExamples
	// ExploreHost is the BI host used for embed links in translate responses.
	ExploreHost string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name, "version": config.Version})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := []struct {
		pattern string
		role    string
		handle  func(Dependencies, http.ResponseWriter, *http.Request)
	}{
		{"GET /v1/explores/{model}/{explore}/fields", auth.RoleExploreUser, handleExploreFields},
		{"POST /v1/explore/translate", auth.RoleExploreUser, handleTranslate},
		{"POST /v1/explore/answer", auth.RoleExploreUser, handleAnswer},
		{"POST /v1/explore/feedback", auth.RoleExploreUser, handleFeedback},
		{"GET /v1/explore/prompts", auth.RoleExploreUser, handleListPrompts},
		{"POST /v1/explore/prompts", auth.RoleAdmin, handleCreatePrompt},
		{"GET /v1/dashboards", auth.RoleDashboardUser, handleListDashboards},
		{"POST /v1/dashboards/{id}/summarize", auth.RoleDashboardUser, handleSummarizeDashboard},
	}

	authenticate := func(next http.Handler) http.Handler { return next }
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			authenticate = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
				})
			}
		} else {
			authenticate = deps.AuthMiddleware
		}
	}
	for _, route := range routes {
		handle := route.handle
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})
		mux.Handle(route.pattern, authenticate(auth.RequireRole(route.role, inner)))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Archive.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
