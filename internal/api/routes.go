package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/phishsim/internal/pkg/logger"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/live", h.health.HandleLiveness)
		r.Get("/health/ready", h.health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	if h.tracking != nil {
		r.Handle("/track/*", h.tracking)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/recipients", func(r chi.Router) {
			r.Get("/", h.ListRecipients)
			r.Post("/", h.CreateRecipient)
			r.Get("/stats", h.RecipientStats)
			r.Get("/departments", h.ListDepartments)
			r.Post("/import", h.ImportRecipients)
			r.Get("/{recipientID}", h.GetRecipient)
			r.Put("/{recipientID}", h.UpdateRecipient)
			r.Delete("/{recipientID}", h.DeleteRecipient)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{groupID}", h.GetGroup)
			r.Delete("/{groupID}", h.DeleteGroup)
			r.Get("/{groupID}/members", h.ListGroupMembers)
			r.Post("/{groupID}/members", h.AddGroupMember)
			r.Delete("/{groupID}/members/{recipientID}", h.RemoveGroupMember)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/categories", h.ListTemplateCategories)
			r.Get("/{templateID}", h.GetTemplate)
			r.Put("/{templateID}", h.UpdateTemplate)
			r.Delete("/{templateID}", h.DeleteTemplate)
			r.Post("/{templateID}/duplicate", h.DuplicateTemplate)
			r.Post("/{templateID}/render", h.RenderTemplate)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{campaignID}", h.GetCampaign)
			r.Put("/{campaignID}", h.UpdateCampaign)
			r.Delete("/{campaignID}", h.DeleteCampaign)
			r.Post("/{campaignID}/launch", h.LaunchCampaign)
			r.Post("/{campaignID}/pause", h.PauseCampaign)
			r.Post("/{campaignID}/cancel", h.CancelCampaign)
			r.Post("/{campaignID}/schedule", h.ScheduleCampaign)
			r.Post("/{campaignID}/unschedule", h.UnscheduleCampaign)
			r.Post("/{campaignID}/send-test", h.SendTestEmail)
			r.Get("/{campaignID}/stats", h.CampaignStats)
			r.Get("/{campaignID}/departments", h.CampaignDepartments)
			r.Get("/{campaignID}/events", h.ListCampaignEvents)
			r.Post("/{campaignID}/events", h.RecordCampaignEvent)
			r.Get("/{campaignID}/tracking", h.CampaignTracking)
			r.Get("/{campaignID}/archive", h.CampaignArchive)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/departments", h.DepartmentRisk)
			r.Get("/activity", h.RecentActivity)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if status >= 500 {
			logger.Error("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	})
}
