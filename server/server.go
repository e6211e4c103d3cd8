// Package server exposes a read-only HTTP view over the store. It never
// triggers fetches; cycles stay explicit CLI invocations.
package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"feedhound/db"
)

type Config struct {
	Store *db.Store
}

// Server builds the fiber app with all routes registered.
func Server(cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "feedhound",
		DisableStartupMessage: true,
	})

	app.Use(requestid.New())
	app.Use(compress.New())
	app.Use(cors.New())

	registerStoreCollector(cfg.Store)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/sources", func(c *fiber.Ctx) error {
		sources, err := cfg.Store.ListSources(!c.QueryBool("all"))
		if err != nil {
			log.Error("Error listing sources: ", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list sources"})
		}
		return c.JSON(sources)
	})

	app.Get("/items", func(c *fiber.Ctx) error {
		opts := db.QueryOptions{
			Category: c.Query("category"),
			Limit:    c.QueryInt("limit", 50),
		}
		if hours := c.QueryInt("since", 0); hours > 0 {
			cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
			opts.Since = &cutoff
		}

		items, err := cfg.Store.QueryItems(opts)
		if err != nil {
			log.Error("Error querying items: ", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not query items"})
		}
		return c.JSON(items)
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

// storeCollector reports stored totals at scrape time so the gauges are
// meaningful even though cycles run in separate processes.
type storeCollector struct {
	store   *db.Store
	sources *prometheus.Desc
	items   *prometheus.Desc
}

func registerStoreCollector(store *db.Store) {
	c := &storeCollector{
		store:   store,
		sources: prometheus.NewDesc("feedhound_sources", "Number of configured sources.", nil, nil),
		items:   prometheus.NewDesc("feedhound_items", "Number of stored items.", nil, nil),
	}
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			// A previous app instance registered one; the newest store wins.
			prometheus.Unregister(already.ExistingCollector)
			prometheus.MustRegister(c)
		} else {
			log.Error("Error registering store collector: ", err)
		}
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sources
	ch <- c.items
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	if n, err := c.store.CountSources(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.sources, prometheus.GaugeValue, float64(n))
	}
	if n, err := c.store.CountItems(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(n))
	}
}
