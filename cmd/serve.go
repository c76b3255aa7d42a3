package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	v1 "github.com/charlesms1246/home-iot-guard/api/v1"
	"github.com/charlesms1246/home-iot-guard/internal/detection/alert"
	"github.com/charlesms1246/home-iot-guard/internal/detection/ml"
	"github.com/charlesms1246/home-iot-guard/internal/middleware"
	"github.com/charlesms1246/home-iot-guard/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dataStore, err := store.NewStore(cfg.RedisURL, cfg.Redis.TTL)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	mailer := alert.NewMailer(alert.MailConfig{
		Host:      cfg.MailHost,
		Port:      cfg.MailPort,
		Username:  cfg.MailUser,
		Password:  cfg.MailPass,
		Recipient: cfg.AlertEmail,
	}, logger)

	var esLogger v1.ScanLogger
	if cfg.Elasticsearch.Enabled {
		es, err := alert.NewESLogger(
			cfg.ElasticsearchAddrs,
			cfg.ElasticsearchUser,
			cfg.ElasticsearchPass,
			cfg.ElasticsearchIndex,
		)
		if err != nil {
			logger.Warn("failed to initialize Elasticsearch logger, scan indexing disabled", zap.Error(err))
		} else {
			esLogger = es
		}
	}

	detector := ml.NewService(ml.ServiceConfig{
		ArtifactDir:      cfg.Detection.ArtifactDir,
		DefaultThreshold: cfg.Detection.DefaultThreshold,
	}, mailer, logger)
	if err := detector.Load(); err != nil {
		// Serve anyway; scans return 503 until a model is trained.
		logger.Warn("no detection model loaded", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.MaxBodySize(cfg.Server.MaxUploadSize))

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.Security.RateLimit), cfg.Security.RateLimitBurst)
	router.Use(limiter.RateLimit())

	handler := v1.NewHandler(dataStore, detector, esLogger, logger)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}
