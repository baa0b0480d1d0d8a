package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CUknot/runtogether/config"
	"github.com/CUknot/runtogether/controllers"
	"github.com/CUknot/runtogether/database"
	"github.com/CUknot/runtogether/docs"
	"github.com/CUknot/runtogether/middleware"
	"github.com/CUknot/runtogether/store"
	"github.com/CUknot/runtogether/telemetry"
	"github.com/CUknot/runtogether/websocket"
	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const serviceName = "runtogether-api"

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimitErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again in " + time.Until(info.ResetTime).String()})
}

// @title           RunTogether API
// @version         1.0
// @description     API Server for the RunTogether running meetup application
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connected successfully")

	s := store.New(db)

	// The hub authorizes subscriptions through the handler, which in turn
	// publishes through the hub.
	var handler *controllers.Handler
	hub := websocket.NewHub(func(ctx context.Context, userID uint, topic string) error {
		return handler.AuthorizeTopic(ctx, userID, topic)
	})
	handler = controllers.New(s, hub, cfg.JWTSecret, cfg.JWTTTL)
	go hub.Run(ctx)

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	router := gin.Default()
	router.Use(middleware.Tracing(serviceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: !allowsAll(cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))
	limiter := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Second, Limit: cfg.RateLimit})
	router.Use(ratelimit.RateLimiter(limiter, &ratelimit.Options{ErrorHandler: rateLimitErrorHandler, KeyFunc: keyFunc}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(cfg.JWTSecret))
	handler.RegisterRoutes(api, protected)

	// WebSocket route
	router.GET("/ws", middleware.JWTAuth(cfg.JWTSecret), hub.HandleConnection(middleware.UserIDKey))

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		log.Printf("Swagger documentation available at http://localhost:%s/swagger/index.html", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown: %v", err)
	}
}

func allowsAll(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
