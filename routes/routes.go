package routes

import (
	"net/http"
	"time"

	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/logger"
	"checkout-service/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestTimeout bounds every request, including a full checkout.
const RequestTimeout = 30 * time.Second

// NewRouter builds the engine with the shared middleware stack and all
// checkout routes.
func NewRouter(cfg *config.Config, cc *controllers.CheckoutController, log *zap.Logger) *gin.Engine {
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.Timeout(RequestTimeout))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": cfg.ServiceName})
	})

	RegisterCheckoutRoutes(r, cc, cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	return r
}

// RegisterCheckoutRoutes sets up checkout and order lookup routes.
func RegisterCheckoutRoutes(r *gin.Engine, cc *controllers.CheckoutController, perMinute, burst int) {
	r.POST("/checkout", middleware.RateLimitMiddleware(perMinute, burst), cc.Checkout)

	orders := r.Group("/orders")
	orders.GET("", cc.ListOrders)
	orders.GET("/:local_id", cc.GetOrder)
}
