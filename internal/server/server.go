package server

import (
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/auth"
	"github.com/SofieTorch/cbba-mobility/internal/config"
	"github.com/SofieTorch/cbba-mobility/internal/line"
	"github.com/SofieTorch/cbba-mobility/internal/recording"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Recordings *recording.Service
	Lines      *line.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	lineSvc := line.NewService(db, redisClient, time.Duration(cfg.LineCacheTTLSec)*time.Second)

	s := &Server{
		App:        app,
		Cfg:        cfg,
		DB:         db,
		Redis:      redisClient,
		Lines:      lineSvc,
		Recordings: recording.NewService(db, lineSvc),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	line.RegisterRoutes(s.App.Group("/lines"), s.Lines, jwtMiddleware)
	recording.RegisterRoutes(s.App.Group("/recordings"), s.Recordings, jwtMiddleware)
}
