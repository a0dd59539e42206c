package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pantrychef/internal/api"
	"pantrychef/internal/auth"
	"pantrychef/internal/config"
	"pantrychef/internal/generation"
	"pantrychef/internal/platform/gemini"
	"pantrychef/internal/platform/localllm"
	"pantrychef/internal/platform/logger"
	"pantrychef/internal/recipe"
)

// routerConfig carries what newRouter needs besides the handler.
type routerConfig struct {
	AllowOrigins []string
	Verifier     *auth.Verifier
	Limiter      *rate.Limiter
	Health       func(ctx context.Context) error
	Log          *zap.Logger
}

func newRouter(handler *api.Handler, cfg routerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(cfg.Log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "unhealthy: "+err.Error())
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", auth.Middleware(cfg.Verifier, cfg.Log))

	generate := authed.Group("/", api.RateLimit(cfg.Limiter))
	generate.POST("/suggestions", handler.Suggest)
	generate.POST("/recipes/generate", handler.Generate)

	authed.POST("/recipes", handler.SaveRecipe)
	authed.GET("/recipes", handler.ListMine)
	authed.GET("/recipes/:id", handler.GetRecipe)
	authed.DELETE("/recipes/:id", handler.DeleteRecipe)
	authed.POST("/recipes/:id/publish", handler.Publish(true))
	authed.POST("/recipes/:id/unpublish", handler.Publish(false))
	authed.PUT("/recipes/:id/nutrition", handler.SaveNutrition)
	authed.GET("/recipes/:id/nutrition", handler.GetNutrition)
	authed.POST("/recipes/:id/ratings", handler.Rate)
	authed.GET("/recipes/:id/ratings", handler.Ratings)
	authed.POST("/recipes/:id/bookmark", handler.Bookmark)
	authed.GET("/bookmarks", handler.ListBookmarks)
	authed.GET("/discover", handler.Discover)

	return r
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer log.Sync()

	var model generation.TextModel
	switch cfg.LLMProvider {
	case "local":
		model = localllm.NewClient(localllm.WithURL(cfg.LocalLLMURL), localllm.WithModel(cfg.LocalLLMModel))
	default:
		if cfg.GeminiAPIKey == "" {
			log.Warn("GOOGLE_GENERATIVE_AI_API_KEY is not set, generation requests will fail")
		}
		geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("error creating gemini client: %w", err)
		}
		defer geminiClient.Close()
		model = geminiClient
	}

	var store recipe.Store
	var health func(context.Context) error
	switch cfg.Storage {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		store = recipe.NewMemoryStore(log)
	default:
		pg, err := recipe.NewPostgresStore(cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("error creating postgresstore: %w", err)
		}
		defer pg.Close()
		store = pg
		health = pg.Ping
	}

	if cfg.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET is not set, every bearer token will be rejected")
	}

	handler := api.NewHandler(
		generation.NewService(model, log),
		recipe.NewService(store, log),
		log,
	)

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(handler, routerConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		Verifier:     auth.NewVerifier(cfg.JWTSecret),
		Limiter:      rate.NewLimiter(rate.Limit(cfg.GenerationRPS), cfg.GenerationBurst),
		Health:       health,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("llm_provider", cfg.LLMProvider), zap.String("storage", cfg.Storage))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
