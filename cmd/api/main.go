// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drewmudry/visium-api/internal/platform"
	"github.com/drewmudry/visium-api/processing"
	"github.com/drewmudry/visium-api/render"
	"github.com/drewmudry/visium-api/scheduler"
	"github.com/drewmudry/visium-api/tasks"
	"github.com/drewmudry/visium-api/videos"
	"github.com/drewmudry/visium-api/worker"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type Server struct {
	Config    platform.Config
	Logger    *zap.Logger
	Redis     *redis.Client
	Registry  tasks.Registry
	Processor *worker.Processor
	Janitor   *scheduler.Janitor
	Router    *gin.Engine
}

func NewServer(ctx context.Context, cfg platform.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.SetupDirectories(); err != nil {
		return nil, err
	}

	var events tasks.Publisher = tasks.NopPublisher{}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := platform.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		rdb = client
		events = tasks.NewRedisPublisher(rdb, logger)
	}

	var engine render.Engine
	switch cfg.RenderBackend {
	case platform.BackendDocker:
		d, err := render.NewDockerEngine(cfg.ManimImage, cfg.TempScriptDir, logger)
		if err != nil {
			return nil, err
		}
		engine = d
	default:
		engine = render.NewManimEngine(cfg.ManimBinary, logger)
	}

	generator := processing.NewScriptGenerator(processing.GeneratorConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.GenerationTimeout,
	}, logger)

	registry := tasks.NewMemoryRegistry()
	processor := worker.NewProcessor(ctx, worker.Config{
		ScratchDir:     cfg.TempScriptDir,
		VideoDir:       cfg.VideoDir(),
		VideoURLPrefix: "/static/videos",
		MaxConcurrent:  cfg.MaxConcurrentRenders,
	}, registry, generator, engine, events, logger)

	janitor := scheduler.NewJanitor(registry, processor, cfg.TempScriptDir, cfg.VideoDir(), cfg.TaskRetention, logger)
	if err := janitor.Start(cfg.JanitorSchedule); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	if cfg.FrontendURL != "" {
		router.Use(cors(cfg.FrontendURL))
	}

	server := &Server{
		Config:    cfg,
		Logger:    logger,
		Redis:     rdb,
		Registry:  registry,
		Processor: processor,
		Janitor:   janitor,
		Router:    router,
	}
	server.setupRoutes()
	return server, nil
}

func (s *Server) setupRoutes() {
	s.Router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Visium AI Video Generator is running."})
	})

	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
			"tasks":  s.Registry.Len(),
		})
	})

	s.Router.Static("/static", s.Config.StaticDir)

	videoHandler := videos.NewHandler(s.Registry, s.Processor, s.Logger)
	videoHandler.RegisterRoutes(s.Router)
}

// Run serves until ctx is cancelled, then drains in-flight tasks.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.Config.Port,
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Server starting", zap.String("port", s.Config.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Warn("http shutdown", zap.Error(err))
	}
	<-s.Janitor.Stop().Done()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancelDrain()
	if err := s.Processor.Wait(drainCtx); err != nil {
		s.Logger.Warn("tasks still rendering at exit", zap.Error(err))
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
	return nil
}

// cors lets the browser frontend at origin submit and poll.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func main() {
	cfg, err := platform.LoadConfig()
	if err != nil {
		// no logger yet; this must be loud
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := platform.NewLogger(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("Failed to create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	if err := server.Run(ctx); err != nil {
		logger.Fatal("Failed to run server", zap.Error(err))
	}
}
