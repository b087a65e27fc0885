package httpgin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service"
)

const adminSessionTTL = 12 * time.Hour

type Options struct {
	Logger *slog.Logger
	// Idem, Feed may be nil; idempotency keys are then ignored and the
	// availability stream answers 503.
	Idem *redisrepo.IdempotencyStore
	Feed *redisrepo.AvailabilityFeed

	AdminSecret  string
	CookieSecure bool
	CORSOrigins  []string
	// Backend names the data backend for /healthz.
	Backend string
}

func NewRouter(svcs *service.Services, opts Options, middlewares ...gin.HandlerFunc) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS(opts.CORSOrigins))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", handleHealth(svcs, opts.Backend))
	r.POST("/contact", handleContact(svcs))

	data := RequireBackend(svcs.HasBackend)

	programmes := r.Group("/programmes", data)
	{
		programmes.GET("/:ref", handleGetProgramme(svcs))
		programmes.GET("/:ref/availability", handleGetAvailability(svcs))
		programmes.GET("/:ref/availability/stream", handleAvailabilityStream(svcs, opts.Feed, logger))
		programmes.POST("/:ref/register", handleRegisterEdition(svcs, opts.Idem))
	}

	events := r.Group("/events", data)
	{
		events.GET("", handleListEvents(svcs))
		events.GET("/:id", handleGetEvent(svcs))
		events.POST("/:id/register", handleRegisterEvent(svcs, opts.Idem))
	}

	r.POST("/admin/login", handleLogin(opts.AdminSecret, opts.CookieSecure))
	r.POST("/admin/logout", handleLogout(opts.CookieSecure))

	admin := r.Group("/admin", AdminAuth(opts.AdminSecret), data)
	{
		admin.GET("/editions", handleAdminListEditions(svcs))
		admin.POST("/editions", handleAdminCreateEdition(svcs))
		admin.PATCH("/editions/:id", handleAdminUpdateEdition(svcs))
		admin.DELETE("/editions/:id", handleAdminDeleteEdition(svcs))
		admin.POST("/editions/:id/archive", handleAdminArchiveEdition(svcs))
		admin.GET("/editions/:id/registrations", handleAdminListRegistrations(svcs))
		admin.PATCH("/date-options/:id", handleAdminUpdateDateOption(svcs))

		admin.GET("/events", handleAdminListEvents(svcs))
		admin.POST("/events", handleAdminCreateEvent(svcs))
		admin.PATCH("/events/:id", handleAdminUpdateEvent(svcs))
		admin.DELETE("/events/:id", handleAdminDeleteEvent(svcs))
		admin.POST("/events/:id/archive", handleAdminArchiveEvent(svcs))
		admin.GET("/events/:id/registrations", handleAdminListEventRegistrations(svcs))

		admin.PATCH("/registrations/:id", handleAdminUpdateRegistration(svcs))
		admin.DELETE("/registrations/:id", handleAdminDeleteRegistration(svcs))
		admin.POST("/registrations/:id/payment-request", handleAdminRequestPayment(svcs))

		admin.PATCH("/event-registrations/:id", handleAdminUpdateEventRegistration(svcs))
		admin.DELETE("/event-registrations/:id", handleAdminDeleteEventRegistration(svcs))
		admin.POST("/event-registrations/:id/payment-request", handleAdminRequestEventPayment(svcs))
	}

	return r
}

// @Summary  Health check
// @Success  200  {object}  map[string]any
// @Router   /healthz [get]
func handleHealth(svcs *service.Services, backend string) gin.HandlerFunc {
	if backend == "" {
		backend = "none"
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"data_backend": backend,
			"available":    svcs.HasBackend(),
		})
	}
}

// @Summary  Admin login
// @Param    req body  LoginRequest true "shared admin secret"
// @Success  204
// @Failure  401 {object} ErrorResponse
// @Router   /admin/login [post]
func handleLogin(secret string, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "admin not configured"})
			return
		}

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "secret is required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(adminCookie, sessionToken(secret), int(adminSessionTTL.Seconds()), "/", "", secure, true)
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Admin logout
// @Success  204
// @Router   /admin/logout [post]
func handleLogout(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(adminCookie, "", -1, "/", "", secure, true)
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
