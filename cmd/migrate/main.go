package main

import (
	"context"
	"log"
	"time"

	"campusattendance/internal/config"
	"campusattendance/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := store.NewDB(cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := store.InitSchema(ctx, db.Client); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("schema up to date")
}
