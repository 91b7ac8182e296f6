package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/moachat/pushkit/internal/logger"
)

// SSE connection configuration
const (
	// maxSSEConnectionDuration caps a single stream to prevent resource
	// leaks from forgotten tabs.
	maxSSEConnectionDuration = 30 * time.Minute
	heartbeatInterval        = 30 * time.Second
	rateLimitWindow          = 1 * time.Minute

	// clickChannelBuffer absorbs bursts; a stalled page that cannot drain
	// it loses events rather than blocking the worker.
	clickChannelBuffer = 10

	rateLimitRequestsPerWindow = 10
	rateLimitBurst             = 15
)

// clickStreamClient is one connected page session on the SSE channel. It
// doubles as a live page context: the click dispatcher posts to it directly
// while it is registered, so a click finds it instead of opening a window.
type clickStreamClient struct {
	id      string
	eventCh chan []byte
	focusCh chan struct{}
	done    chan struct{}
}

// ID identifies the stream for logging and unregistration.
func (s *clickStreamClient) ID() string { return s.id }

// PostMessage queues a payload for the stream loop. A stalled page loses
// the event rather than blocking the dispatcher.
func (s *clickStreamClient) PostMessage(payload []byte) error {
	select {
	case s.eventCh <- payload:
	default:
	}
	return nil
}

// Focus asks the far side to bring itself to the foreground.
func (s *clickStreamClient) Focus() error {
	select {
	case s.focusCh <- struct{}{}:
	default:
	}
	return nil
}

func (c *Controller) registerClickStream(group *echo.Group) {
	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimitRequestsPerWindow,
				Burst:     rateLimitBurst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many click stream connection attempts, please wait before trying again",
			})
		},
	}

	group.GET("/clicks/stream", c.StreamClicks, middleware.RateLimiterWithConfig(rateLimiterConfig))
}

// StreamClicks serves the direct signal channel over SSE. Every payload
// published on the broadcast channel is forwarded verbatim; page sessions
// run their usual discriminant and dedupe filtering on the far side.
// GET /api/v1/clicks/stream
func (c *Controller) StreamClicks(ctx echo.Context) error {
	if c.broadcast == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Click stream not available",
		})
	}

	setSSEHeaders(ctx)

	client := &clickStreamClient{
		id:      uuid.New().String(),
		eventCh: make(chan []byte, clickChannelBuffer),
		focusCh: make(chan struct{}, 1),
		done:    make(chan struct{}, 1),
	}

	cancel := c.broadcast.Subscribe(func(payload []byte) {
		select {
		case client.eventCh <- payload:
		default:
			// Client is not draining; drop instead of blocking the bus.
		}
	})
	defer cancel()

	if c.registry != nil {
		c.registry.Register(client)
		defer c.registry.Unregister(client.id)
	}

	if err := c.sendSSEMessage(ctx, "connected", map[string]string{
		"clientId": client.id,
	}); err != nil {
		return err
	}

	c.log.Info("click stream client connected",
		logger.String("client_id", client.id),
		logger.String("ip", ctx.RealIP()))

	go func() {
		<-ctx.Request().Context().Done()
		select {
		case client.done <- struct{}{}:
		default:
		}
	}()

	err := c.runClickStreamLoop(ctx, client)
	c.log.Info("click stream client disconnected", logger.String("client_id", client.id))
	return err
}

func (c *Controller) runClickStreamLoop(ctx echo.Context, client *clickStreamClient) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	connectionStart := time.Now()

	for {
		select {
		case payload := <-client.eventCh:
			if err := c.sendSSERaw(ctx, "click", payload); err != nil {
				c.log.Warn("failed to send click event",
					logger.String("client_id", client.id),
					logger.Error(err))
				return err
			}

		case <-client.focusCh:
			if err := c.sendSSEMessage(ctx, "focus", map[string]string{
				"clientId": client.id,
			}); err != nil {
				return err
			}

		case <-ticker.C:
			if time.Since(connectionStart) > maxSSEConnectionDuration {
				return nil
			}
			if err := c.sendSSEMessage(ctx, "heartbeat", map[string]string{
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				return err
			}

		case <-client.done:
			return nil
		}
	}
}

func setSSEHeaders(ctx echo.Context) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE payload: %w", err)
	}
	return c.sendSSERaw(ctx, event, payload)
}

func (c *Controller) sendSSERaw(ctx echo.Context, event string, payload []byte) error {
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write SSE frame: %w", err)
	}
	ctx.Response().Flush()
	return nil
}
