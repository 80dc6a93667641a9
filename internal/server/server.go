// Package server exposes the resolution pipeline over HTTP: event
// resolution, corridor inventory, KML export, health, and metrics.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/openroads/corridor/internal/lib/event"
	"github.com/openroads/corridor/internal/services"
	"github.com/openroads/corridor/internal/store"
)

// Server is the HTTP front end over a resolver and corridor store.
type Server struct {
	app      *fiber.App
	resolver *services.Resolver
	store    *store.Store
}

// New builds the fiber app and registers all routes.
func New(resolver *services.Resolver, st *store.Store) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "corridor",
		}),
		resolver: resolver,
		store:    st,
	}

	s.app.Use(recover.New())

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", metricsHandler())

	v1 := s.app.Group("/api/v1")
	v1.Post("/resolve", s.handleResolve)
	v1.Post("/resolve/batch", s.handleResolveBatch)
	v1.Get("/corridors", s.handleListCorridors)
	v1.Get("/corridors/export.kml", s.handleExportKML)

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until the listener fails or Shutdown is called.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (s *Server) handleResolve(c *fiber.Ctx) error {
	var loc event.Location
	if err := c.BodyParser(&loc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	resolved, err := s.resolver.Resolve(c.Context(), loc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(resolved)
}

func (s *Server) handleResolveBatch(c *fiber.Ctx) error {
	var locations []event.Location
	if err := c.BodyParser(&locations); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	resolved := make([]event.Resolved, 0, len(locations))
	failures := make([]fiber.Map, 0)
	for _, loc := range locations {
		res, err := s.resolver.Resolve(c.Context(), loc)
		if err != nil {
			failures = append(failures, fiber.Map{"id": loc.ID, "error": err.Error()})
			continue
		}
		resolved = append(resolved, res)
	}

	return c.JSON(fiber.Map{
		"resolved": resolved,
		"failures": failures,
	})
}

func (s *Server) handleListCorridors(c *fiber.Ctx) error {
	if s.store == nil {
		return c.JSON(fiber.Map{"corridors": []store.Summary{}})
	}

	summaries, err := s.store.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	return c.JSON(fiber.Map{"corridors": summaries})
}

func (s *Server) handleExportKML(c *fiber.Ctx) error {
	if s.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no corridor store configured",
		})
	}

	corridors, err := s.store.All(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, "application/vnd.google-earth.kml+xml")
	return store.ExportKML(c.Response().BodyWriter(), corridors)
}

// metricsHandler bridges the Prometheus HTTP handler into fiber.
func metricsHandler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
