package httpx

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/NathalieLiekens/vp-backend/pkg/auth"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Signer         *auth.Signer
}

func NewRouter(h *Handler, cfg RouterConfig, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	r.Use(RequestLogger(log, "/api/bookings"))

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.GET("/blocked-dates", h.BlockedDates)
		api.POST("/bookings", h.CreateBooking)
		api.POST("/bookings/confirm-payment", h.ConfirmPayment)
		api.POST("/bookings/webhook", h.Webhook)

		admin := api.Group("/admin")
		admin.Use(JWTAuth(cfg.Signer), RequireRole(auth.RoleOwner))
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/bookings/:id", h.GetBooking)
	}
	return r
}
