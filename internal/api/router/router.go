package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/reminder-dispatcher/internal/api/handlers/dispatch"
	"github.com/aliskhannn/reminder-dispatcher/internal/api/handlers/reminder"
	"github.com/aliskhannn/reminder-dispatcher/internal/api/middlewares"
	"github.com/aliskhannn/reminder-dispatcher/internal/api/respond"
)

// Options carries what the router needs besides the handlers.
type Options struct {
	Secret       string
	AllowOrigins []string
	Gatherer     prometheus.Gatherer
}

func New(dispatchHandler *dispatch.Handler, reminderHandler *reminder.Handler, opts Options) *ginext.Engine {
	e := ginext.New()
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())
	e.Use(middlewares.CORS(opts.AllowOrigins))

	e.GET("/health", func(c *ginext.Context) {
		respond.OK(c.Writer, gin.H{"ok": true})
	})

	if opts.Gatherer != nil {
		e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	api.Use(middlewares.SharedSecret(opts.Secret))

	api.GET("/dispatch", dispatchHandler.Dispatch)
	api.POST("/dispatch", dispatchHandler.Dispatch)
	api.GET("/reminders/:id", reminderHandler.Get)
	api.GET("/reminders/:id/status", reminderHandler.GetStatus)

	return e
}
