package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattendance/internal/attendance"
	"campusattendance/internal/auth"
	"campusattendance/internal/calendar"
	"campusattendance/internal/config"
	"campusattendance/internal/faceclient"
	"campusattendance/internal/filestore"
	"campusattendance/internal/geofence"
	"campusattendance/internal/handler"
	"campusattendance/internal/httpmiddleware"
	"campusattendance/internal/identity"
	"campusattendance/internal/metrics"
	"campusattendance/internal/photo"
	"campusattendance/internal/queue"
	"campusattendance/internal/schedule"
	"campusattendance/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		if db == nil {
			return err
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	disk, err := filestore.NewDisk(cfg.UploadDir, int64(cfg.MaxUploadMB)<<20)
	if err != nil {
		return err
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, faceclient.Matcher{
		Threshold: cfg.FaceMatchThreshold,
		Policy:    cfg.FaceMatchPolicy,
	})
	if cfg.FaceSkip {
		log.Println("face service disabled (FACE_SKIP), using mock detection")
	}

	q := queue.New(cfg.QueueBackend, redisClient.Client, cfg.QueueKey)
	m := metrics.New(prometheus.DefaultRegisterer)
	clk := clock.New()
	loc := cfg.Location()

	pg := attendance.NewPGStore(db.Client)
	cal := calendar.NewService(calendar.NewRepository(db.Client))
	windows := schedule.NewService(schedule.NewRepository(db.Client))

	marker := attendance.NewService(pg, disk, face, clk, attendance.Config{
		MaxDailyAttempts: cfg.MaxDailyAttempts,
		FaceTimeout:      cfg.FaceTimeout,
		MatchPolicy:      cfg.FaceMatchPolicy,
		Location:         loc,
	}).WithEvents(q).WithMetrics(m)

	h := &handler.Handler{
		Marker:    marker,
		Stats:     attendance.NewStatsEngine(pg, cal, identity.NewDirectory(db.Client), windows, clk, loc),
		Photos:    photo.NewService(db.Client, disk, face, clk, cfg.FaceTimeout),
		Geofences: geofence.NewService(db.Client),
		Windows:   windows,
		Holidays:  cal,
		Today:     func() calendar.Date { return calendar.DateOf(clk.Now().In(loc)) },
		Throttle:  httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.Caller, clk).GinMiddleware(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(m.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", handler.Health(map[string]handler.Check{
		"db":    db.Healthy,
		"redis": redisClient.Healthy,
		"face":  func(ctx context.Context) bool { return face.Health(ctx) == nil },
	}))

	// Per-student cap on mark calls, shared across API replicas through redis.
	markLimit := httpmiddleware.NewWindowLimiter(
		httpmiddleware.RedisCounter{Client: redisClient.Client},
		"ratelimit:mark", cfg.MarkRatePerMin, time.Minute,
		func(c *gin.Context) string {
			claims, _ := auth.ClaimsFrom(c)
			return claims.Subject
		},
	)
	h.Register(r, auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer), markLimit.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FaceTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS only in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
