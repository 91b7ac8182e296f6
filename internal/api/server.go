// Package api exposes the worker runtime over HTTP: push injection from
// the push gateway, notification click callbacks, and an SSE stream that
// serves as the direct signal channel for out-of-process page sessions.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moachat/pushkit/internal/cachegen"
	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
	"github.com/moachat/pushkit/internal/routing"
	"github.com/moachat/pushkit/internal/worker"
)

// ClientRegistry tracks the live page contexts the click dispatcher can
// reach. The controller registers every connected SSE stream as one.
type ClientRegistry interface {
	Register(client routing.ClientContext)
	Unregister(id string)
}

// Controller wires the worker runtime to HTTP routes.
type Controller struct {
	echo      *echo.Echo
	settings  *conf.Settings
	runtime   *worker.Runtime
	broadcast routing.Subscribable
	registry  ClientRegistry
	metrics   *metrics.Metrics
	log       logger.Logger
}

// New creates the HTTP controller and registers all routes. broadcast is
// the channel click events are mirrored onto; the SSE stream forwards it.
// Connected streams are registered in registry (may be nil) so clicks find
// them as live contexts.
func New(settings *conf.Settings, runtime *worker.Runtime, broadcast routing.Subscribable, registry ClientRegistry, m *metrics.Metrics, log logger.Logger) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	c := &Controller{
		echo:      e,
		settings:  settings,
		runtime:   runtime,
		broadcast: broadcast,
		registry:  registry,
		metrics:   m,
		log:       log,
	}
	c.registerRoutes()
	return c
}

func (c *Controller) registerRoutes() {
	c.echo.GET("/healthz", c.Healthz)
	c.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := c.echo.Group("/api/v1")
	v1.POST("/push", c.ReceivePush)
	v1.GET("/notifications", c.ListNotifications)
	v1.POST("/notifications/:tag/click", c.ClickNotification)
	v1.DELETE("/notifications/:tag", c.CloseNotification)
	v1.DELETE("/notifications/groups/:group", c.ClearGroup)
	v1.GET("/cache/version", c.CacheVersion)

	c.registerClickStream(v1)
}

// Start runs the HTTP server until the context is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.echo.Start(fmt.Sprintf(":%d", c.settings.WebServer.Port))
	}()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.echo.Shutdown(shutdownCtx)
	}
}

// Echo returns the underlying router, used by tests.
func (c *Controller) Echo() *echo.Echo { return c.echo }

// Healthz reports liveness.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ReceivePush ingests a raw push payload. The body may be empty or garbage;
// the pipeline falls back to default notification content.
// POST /api/v1/push
func (c *Controller) ReceivePush(ctx echo.Context) error {
	raw, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read payload",
		})
	}

	c.runtime.HandlePush(raw)
	return ctx.JSON(http.StatusAccepted, map[string]string{
		"message": "push accepted",
	})
}

// ListNotifications returns the currently visible notification tags.
// GET /api/v1/notifications
func (c *Controller) ListNotifications(ctx echo.Context) error {
	tags := c.runtime.Presenter().ActiveTags()
	return ctx.JSON(http.StatusOK, map[string]any{
		"tags":  tags,
		"count": len(tags),
	})
}

// ClickNotification runs the click fan-out pipeline for a notification.
// The room comes from the tracked notification's payload, so a roomless
// push routes to the generic landing page even when its tag looks like a
// room. A roomId query parameter overrides the tracked value.
// POST /api/v1/notifications/:tag/click
func (c *Controller) ClickNotification(ctx echo.Context) error {
	tag := ctx.Param("tag")
	if tag == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "notification tag is required",
		})
	}

	roomID := ""
	if d, ok := c.runtime.Presenter().Active(tag); ok {
		roomID = d.RoomID()
	}
	if ctx.QueryParams().Has("roomId") {
		roomID = ctx.QueryParam("roomId")
	}

	c.runtime.HandleClick(ctx.Request().Context(), tag, roomID)
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "click dispatched",
	})
}

// CloseNotification dismisses a notification without routing a click.
// DELETE /api/v1/notifications/:tag
func (c *Controller) CloseNotification(ctx echo.Context) error {
	tag := ctx.Param("tag")
	if tag == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "notification tag is required",
		})
	}
	c.runtime.Presenter().Close(tag)
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "notification closed",
	})
}

// ClearGroup dismisses every notification in a group.
// DELETE /api/v1/notifications/groups/:group
func (c *Controller) ClearGroup(ctx echo.Context) error {
	group := ctx.Param("group")
	if group == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "group is required",
		})
	}
	c.runtime.Presenter().ClearGroup(group)
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "group cleared",
	})
}

// CacheVersion reports the active cache generation.
// GET /api/v1/cache/version
func (c *Controller) CacheVersion(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"version":    c.settings.Worker.CacheVersion,
		"generation": cachegen.GenerationName(c.settings.Worker.CacheVersion),
	})
}
