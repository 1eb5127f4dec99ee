package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"we-planet-api/config"
	"we-planet-api/database"
	"we-planet-api/handlers"
	"we-planet-api/services"
	"we-planet-api/utils"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	db, err := database.Open(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal(err)
	}
	if cfg.SeedDefaults {
		if err := services.SeedDefaults(db, time.Now()); err != nil {
			log.Fatal("failed to seed defaults: ", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store utils.ObjectStore
	var staticDir string
	if cfg.UseS3() {
		s3Store, err := utils.NewS3Store(ctx, utils.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.CDNBaseURL,
		})
		if err != nil {
			log.Fatal("failed to initialize S3 store: ", err)
		}
		store = s3Store
	} else {
		local, err := utils.NewLocalStore(cfg.UploadDir, "/uploads")
		if err != nil {
			log.Fatal(err)
		}
		store, staticDir = local, cfg.UploadDir
		log.Printf("⚠️  S3_BUCKET not set, storing images under ./%s", cfg.UploadDir)
	}

	hasher := utils.NewPasswordHasher(utils.DefaultBcryptCost)
	tokens := services.NewTokenService(services.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	badges := services.NewBadgeService(db)
	uploads := services.NewUploadService(db, store, cfg.MaxFileSize, cfg.AllowedFileTypes)
	svc := handlers.Services{
		DB:         db,
		Auth:       services.NewAuthService(db, tokens, hasher, cfg.RefreshPolicy),
		Users:      services.NewUserService(db, hasher, badges),
		Families:   services.NewFamilyService(db),
		Activities: services.NewActivityService(db, badges, uploads),
		Badges:     badges,
		Missions:   services.NewMissionService(db, badges),
		Uploads:    uploads,
	}

	sched, err := services.StartMaintenanceScheduler(services.MaintenanceJobs{
		Missions: svc.Missions,
		Auth:     svc.Auth,
	})
	if err != nil {
		log.Fatal("failed to start scheduler: ", err)
	}

	app := handlers.NewApp(svc, handlers.AppOptions{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		BodyLimit:          int(cfg.MaxFileSize) + 1024*1024,
		StaticDir:          staticDir,
		AccessLog:          true,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s (%s)", cfg.Port, cfg.Environment)
	log.Printf("✅ Refresh token policy: %s", cfg.RefreshPolicy)
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
