package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenfolio/portal-backend/api/controllers"
	"github.com/lumenfolio/portal-backend/api/middleware"
	"github.com/lumenfolio/portal-backend/internal/engagement"
	"github.com/lumenfolio/portal-backend/internal/notifications"
	"github.com/lumenfolio/portal-backend/internal/notifier"
	"github.com/lumenfolio/portal-backend/internal/portal"
	"github.com/lumenfolio/portal-backend/internal/proposals"
	"github.com/lumenfolio/portal-backend/internal/resources"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	DBPinger      controllers.Pinger
	RedisPinger   controllers.Pinger
	PubSubPinger  controllers.Pinger
	Portal        portal.Service
	Resources     resources.Service
	Proposals     proposals.Service
	Engagement    engagement.Service
	Notifier      notifier.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":     deps.DBPinger,
			"redis":  deps.RedisPinger,
			"pubsub": deps.PubSubPinger,
		}))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/portal/v1/resources/{resourceId}", func(r chi.Router) {
		r.Use(middleware.PortalSession(logg))
		r.Get("/", controllers.PortalView(deps.Portal, logg))
		r.Post("/authenticate", controllers.PortalAuthenticate(deps.Portal, logg))
		r.Post("/respond", controllers.PortalRespond(deps.Portal, logg))
		r.Post("/download/{itemId}", controllers.PortalDownload(deps.Portal, logg))
		r.Post("/download-all", controllers.PortalDownloadAll(deps.Portal, logg))
		r.Post("/media/{itemId}/like", controllers.PortalLikeMedia(deps.Portal, logg))
		r.Post("/media/{itemId}/comment", controllers.PortalCommentMedia(deps.Portal, logg))
		r.Post("/events", controllers.PortalTrackEvent(deps.Portal, logg))
	})

	r.Post("/api/admin/v1/auth/login", controllers.AdminLogin(cfg.Admin, cfg.JWT, logg))

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))

		r.Route("/resources", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateResource(deps.Resources, logg))
			r.Get("/", controllers.AdminListResources(deps.Resources, logg))
			r.Route("/{resourceId}", func(r chi.Router) {
				r.Get("/", controllers.AdminGetResource(deps.Resources, logg))
				r.Patch("/", controllers.AdminUpdateResource(deps.Resources, logg))
				r.Delete("/", controllers.AdminDeleteResource(deps.Resources, logg))
				r.Post("/media", controllers.AdminUploadMedia(deps.Resources, cfg.MediaStore, logg))
				r.Delete("/media/{itemId}", controllers.AdminDeleteMedia(deps.Resources, logg))
				r.Post("/send", controllers.AdminSendProposal(deps.Proposals, deps.Notifier, deps.Engagement, logg))
				r.Get("/analytics", controllers.AdminResourceAnalytics(deps.Engagement, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
