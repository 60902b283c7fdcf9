package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattendance/internal/attendance"
	"campusattendance/internal/cloudinary"
	"campusattendance/internal/config"
	"campusattendance/internal/metrics"
	"campusattendance/internal/queue"
	"campusattendance/internal/store"
)

// Worker consumes attempt events and archives failed-attempt captures.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	q := queue.New(cfg.QueueBackend, redisClient.Client, cfg.QueueKey)
	if cfg.QueueBackend == "memory" {
		log.Println("WARNING: memory queue selected, the worker will not see API events")
	}

	var uploader attendance.Uploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, events will be drained without archiving")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	archiver := attendance.NewArchiver(attendance.NewRepository(db.Client), uploader, m)

	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		result, err := archiver.Handle(ctx, msg)
		if err != nil {
			log.Printf("archive %s failed (retry %d): %v", msg.Body, msg.Retries, err)
			retry(ctx, q, msg, cfg.ArchiveMaxRetries, cfg.ArchiveRetryBackoff)
			continue
		}
		if result == attendance.ArchiveUploaded {
			log.Printf("attempt %s archived", msg.Body)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Println("worker stopped")
}

// retry waits a linearly growing backoff and puts msg back on the queue.
// Messages past maxRetries are dropped; the attempt row keeps its local
// capture path, so nothing is lost beyond the off-box copy.
func retry(ctx context.Context, q queue.Queue, msg queue.Message, maxRetries int, backoff time.Duration) {
	if msg.Retries >= maxRetries {
		log.Printf("archive %s: giving up after %d retries", msg.Body, msg.Retries)
		return
	}
	select {
	case <-time.After(backoff * time.Duration(msg.Retries+1)):
	case <-ctx.Done():
	}
	// Publish with a fresh context so a shutdown does not drop the message.
	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := queue.Requeue(pubCtx, q, msg, maxRetries); err != nil {
		log.Printf("archive %s: %v", msg.Body, err)
	}
}
