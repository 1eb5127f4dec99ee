package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"we-planet-api/metrics"
	"we-planet-api/middleware"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	DB         *gorm.DB
	Auth       *services.AuthService
	Users      *services.UserService
	Families   *services.FamilyService
	Activities *services.ActivityService
	Badges     *services.BadgeService
	Missions   *services.MissionService
	Uploads    *services.UploadService
}

type AppOptions struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	// BodyLimit must leave room for the largest accepted upload plus multipart overhead.
	BodyLimit int
	// StaticDir is served under /uploads when images are stored on local disk.
	StaticDir string
	AccessLog bool
}

// NewApp builds the Fiber app with the global middleware and every /api/v1 route.
func NewApp(svc Services, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "we-planet-api",
		ErrorHandler: ErrorHandler,
		BodyLimit:    opts.BodyLimit,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(opts.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: !containsWildcard(opts.AllowedOrigins),
		MaxAge:           86400,
	}))
	app.Use(metrics.Middleware())

	app.Get("/health", healthHandler(svc.DB))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if opts.StaticDir != "" {
		app.Static("/uploads", opts.StaticDir)
	}

	api := app.Group("/api/v1")
	guard := middleware.RequireAuth(svc.Auth)

	SetupAuthRoutes(api, guard, authLimiter(opts.RateLimitPerMinute), svc.Auth, svc.Users)
	SetupUserRoutes(api, guard, svc.Users)
	SetupFamilyRoutes(api, guard, svc.Families)
	SetupActivityRoutes(api, guard, svc.Activities)
	SetupBadgeRoutes(api, guard, svc.Badges)
	SetupMissionRoutes(api, guard, svc.Missions)
	SetupUploadRoutes(api, guard, svc.Uploads, svc.Users)

	return app
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}

// authLimiter throttles the unauthenticated credential endpoints per client IP.
func authLimiter(perMinute int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE_LIMIT] %s exceeded %d req/min on %s", c.IP(), perMinute, c.Path())
			return c.Status(fiber.StatusTooManyRequests).
				JSON(errorBody("rate_limited", "too many requests, try again later", nil))
		},
	})
}

func healthHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status, dbStatus, code := "healthy", "ok", fiber.StatusOK

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Printf("⚠️ [HEALTH] database ping failed: %v", err)
			status, dbStatus, code = "unhealthy", "unreachable", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":    status,
			"database":  dbStatus,
			"timestamp": time.Now().UTC(),
		})
	}
}
