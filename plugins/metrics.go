package plugins

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPlugin exposes the Prometheus registry at /metrics
type MetricsPlugin struct{}

// Name returns the plugin identifier
func (p *MetricsPlugin) Name() string {
	return "metrics"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *MetricsPlugin) RegisterRoutes(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// Shutdown performs cleanup
func (p *MetricsPlugin) Shutdown() error {
	return nil
}

func init() {
	Register("metrics", func(config interface{}) (Plugin, error) {
		return &MetricsPlugin{}, nil
	})
}
