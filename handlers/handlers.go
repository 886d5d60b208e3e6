// Package handlers wires the HTTP surface. Route handlers translate between
// gin and the internal packages; all business rules live below this layer.
package handlers

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/lucypulova/Elitearn/internal/auth"
	"github.com/lucypulova/Elitearn/internal/cart"
	"github.com/lucypulova/Elitearn/internal/courses"
	"github.com/lucypulova/Elitearn/internal/orders"
	"github.com/lucypulova/Elitearn/internal/users"
	"github.com/lucypulova/Elitearn/middleware"
	"github.com/lucypulova/Elitearn/pkg/ctxmanage"
	"github.com/lucypulova/Elitearn/pkg/logkey"
	"github.com/lucypulova/Elitearn/pkg/metrics"
)

type Handler struct {
	u          *users.Conf
	catalog    *courses.Conf
	cart       *cart.Conf
	o          *orders.Conf
	keys       *auth.Keys
	metrics    *metrics.Metrics
	provider   string
	uploadsDir string
}

func NewHandler(u *users.Conf, catalog *courses.Conf, ct *cart.Conf, o *orders.Conf,
	keys *auth.Keys, m *metrics.Metrics, provider, uploadsDir string) *Handler {
	return &Handler{
		u:          u,
		catalog:    catalog,
		cart:       ct,
		o:          o,
		keys:       keys,
		metrics:    m,
		provider:   provider,
		uploadsDir: uploadsDir,
	}
}

func API(h *Handler, keys *auth.Keys, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	mid, err := middleware.NewMid(keys)
	if err != nil {
		panic(err)
	}
	registerValidations()

	r.Use(middleware.Logger(), middleware.Latency(m), gin.Recovery())

	r.GET("/api/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/api/auth/register", h.Register)
	r.POST("/api/auth/login", h.Login)
	r.GET("/api/courses", h.ListCourses)
	r.GET("/api/public/download/:token", h.PublicDownload)

	private := r.Group("/api")
	private.Use(mid.Authentication())
	{
		private.GET("/me/profile", h.GetProfile)
		private.PUT("/me/profile", h.UpdateProfile)
		private.GET("/me/orders", h.ListOrders)
		private.GET("/me/courses", h.ListMyCourses)

		private.GET("/cart", h.GetCart)
		private.POST("/cart/items", h.AddCartItem)
		private.PUT("/cart/items/:courseId", h.UpdateCartItem)
		private.DELETE("/cart/items/:courseId", h.RemoveCartItem)

		private.POST("/orders", h.CreateOrder)
		private.POST("/orders/:orderId/process", h.ProcessOrder)
		private.POST("/orders/:orderId/confirm", h.ConfirmOrder)

		private.GET("/courses/:courseId/assets", h.ListCourseAssets)
		private.GET("/assets/:assetId/download", h.DownloadAsset)
	}

	creator := r.Group("/api/creator")
	creator.Use(mid.Authentication(), mid.RequireRole(auth.RoleCreator, auth.RoleAdmin))
	{
		creator.POST("/courses", h.CreateCourse)
		creator.GET("/courses", h.ListCreatorCourses)
		creator.POST("/courses/:courseId/assets", h.UploadAsset)
		creator.DELETE("/assets/:assetId", h.DeleteAsset)
	}

	return r
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "provider": h.provider})
}

// currentUser pulls the authenticated caller out of the request context. A
// missing or malformed claim aborts with 401 and returns ok=false.
func currentUser(c *gin.Context) (auth.Claims, int64, bool) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.Claims{}, 0, false
	}
	userID, err := claims.UserID()
	if err != nil {
		slog.Error("invalid token subject", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.Claims{}, 0, false
	}
	return claims, userID, true
}
