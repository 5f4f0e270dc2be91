// Package server exposes the briefly HTTP API on a fiber app. Handlers
// translate the error taxonomy of the underlying services into status
// codes; everything else is delegated.
package server

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"briefly/articles"
	"briefly/db"
	"briefly/feeds"
	"briefly/models"
	"briefly/sources"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	log "github.com/sirupsen/logrus"
)

// healthTimeout bounds the store pings behind GET /health.
const healthTimeout = 5 * time.Second

// FeedService is the slice of the feeds service the HTTP layer calls.
type FeedService interface {
	Create(ctx context.Context, request feeds.CreateRequest) (*feeds.CreateResult, error)
	Get(ctx context.Context, feedID string) (*models.Feed, error)
	List(ctx context.Context) ([]models.Feed, error)
	Delete(ctx context.Context, feedID string) error
	Refresh(ctx context.Context, feedID string) (*models.RefreshSummary, error)
	Articles(ctx context.Context, feedID string, limit int) ([]models.ArticleView, error)
	AddSource(ctx context.Context, feedID string, rawURL string) (*models.SourceDescriptor, error)
}

// SourceValidator registers a single source URL.
type SourceValidator interface {
	Validate(ctx context.Context, rawURL string) (*models.SourceDescriptor, error)
}

// SourceDiscoverer finds sources for a topic query.
type SourceDiscoverer interface {
	Discover(ctx context.Context, topic string, targetCount int) ([]models.SourceDescriptor, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerConfig struct {

	// Feed orchestration service
	Service FeedService

	// Validator registers explicit source URLs
	Validator SourceValidator

	// Discovery finds sources for a topic query
	Discovery SourceDiscoverer

	// Relational store probe for the health endpoint
	DB Pinger

	// Read cache probe for the health endpoint
	Cache Pinger
}

type sourceRequest struct {
	URL string `json:"url"`
}

type discoverRequest struct {
	Topic       string `json:"topic"`
	TargetCount int    `json:"targetCount"`
}

// Returns a fiber.App instance serving the briefly HTTP API
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(cors.New())

	app.Post("/api/feeds", func(c *fiber.Ctx) error {
		var request feeds.CreateRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).SendString("Invalid request body")
		}

		result, err := config.Service.Create(c.Context(), request)
		if err != nil {
			if errors.Is(err, feeds.ErrValidation) {
				return c.Status(400).SendString(err.Error())
			}
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error creating feed")
			return c.Status(500).SendString("Error creating feed")
		}

		return c.Status(201).JSON(result)
	})

	app.Get("/api/feeds", func(c *fiber.Ctx) error {
		feedList, err := config.Service.List(c.Context())
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error listing feeds")
			return c.Status(500).SendString("Error listing feeds")
		}

		return c.JSON(feedList)
	})

	app.Get("/api/feeds/:id", func(c *fiber.Ctx) error {
		feed, err := config.Service.Get(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.Status(404).SendString("Feed not found")
			}
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error fetching feed")
			return c.Status(500).SendString("Error fetching feed")
		}

		return c.JSON(feed)
	})

	app.Delete("/api/feeds/:id", func(c *fiber.Ctx) error {
		if err := config.Service.Delete(c.Context(), c.Params("id")); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.Status(404).SendString("Feed not found")
			}
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error deleting feed")
			return c.Status(500).SendString("Error deleting feed")
		}

		return c.SendStatus(204)
	})

	app.Post("/api/feeds/:id/refresh", func(c *fiber.Ctx) error {
		summary, err := config.Service.Refresh(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.Status(404).SendString("Feed not found")
			}
			log.WithFields(log.Fields{
				"feed":  c.Params("id"),
				"error": err,
			}).Error("Error refreshing feed")
			return c.Status(500).SendString("Error refreshing feed")
		}

		return c.JSON(summary)
	})

	app.Post("/api/feeds/:id/sources", func(c *fiber.Ctx) error {
		var request sourceRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).SendString("Invalid request body")
		}

		descriptor, err := config.Service.AddSource(c.Context(), c.Params("id"), request.URL)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.Status(404).SendString("Feed not found")
			}
			if errors.Is(err, sources.ErrInvalidURL) || errors.Is(err, sources.ErrUnreachable) {
				return c.Status(422).SendString(err.Error())
			}
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error adding source")
			return c.Status(500).SendString("Error adding source")
		}

		return c.Status(201).JSON(descriptor)
	})

	app.Get("/api/feeds/:id/articles", func(c *fiber.Ctx) error {
		// Parse the limit, default 20, max 100
		limit, err := strconv.ParseInt(c.Query("limit", "20"), 0, 32)
		if err != nil || limit < 1 || limit > 100 {
			limit = 20
		}

		views, err := config.Service.Articles(c.Context(), c.Params("id"), int(limit))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.Status(404).SendString("Feed not found")
			}
			if errors.Is(err, articles.ErrStoreUnavailable) {
				return c.Status(503).SendString("Article stores unavailable")
			}
			log.WithFields(log.Fields{
				"feed":  c.Params("id"),
				"error": err,
			}).Error("Error listing articles")
			return c.Status(500).SendString("Error listing articles")
		}

		return c.JSON(views)
	})

	app.Post("/api/sources", func(c *fiber.Ctx) error {
		var request sourceRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).SendString("Invalid request body")
		}
		if strings.TrimSpace(request.URL) == "" {
			return c.Status(400).SendString("Missing url")
		}

		descriptor, err := config.Validator.Validate(c.Context(), request.URL)
		if err != nil {
			if errors.Is(err, sources.ErrInvalidURL) || errors.Is(err, sources.ErrUnreachable) {
				return c.Status(422).SendString(err.Error())
			}
			log.WithFields(log.Fields{
				"url":   request.URL,
				"error": err,
			}).Error("Error validating source")
			return c.Status(500).SendString("Error validating source")
		}

		return c.Status(201).JSON(descriptor)
	})

	app.Post("/api/discover", func(c *fiber.Ctx) error {
		var request discoverRequest
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).SendString("Invalid request body")
		}
		if strings.TrimSpace(request.Topic) == "" {
			return c.Status(400).SendString("Missing topic")
		}

		log.WithFields(log.Fields{
			"topic": request.Topic,
			"count": request.TargetCount,
		}).Info("Discover sources with parameters")

		descriptors, err := config.Discovery.Discover(c.Context(), request.Topic, request.TargetCount)
		if err != nil {
			log.WithFields(log.Fields{
				"topic": request.Topic,
				"error": err,
			}).Error("Error discovering sources")
			return c.Status(500).SendString("Error discovering sources")
		}

		return c.JSON(descriptors)
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), healthTimeout)
		defer cancel()

		health := map[string]interface{}{
			"relational": "ok",
			"cache":      "ok",
		}
		healthy := true

		if err := config.DB.Ping(ctx); err != nil {
			health["relational"] = err.Error()
			healthy = false
		}
		if err := config.Cache.Ping(ctx); err != nil {
			health["cache"] = err.Error()
			healthy = false
		}

		if !healthy {
			return c.Status(503).JSON(health)
		}
		return c.JSON(health)
	})

	return app
}
