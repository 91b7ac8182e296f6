package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moachat/pushkit/internal/cachegen"
	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/notify"
	"github.com/moachat/pushkit/internal/observability/metrics"
	"github.com/moachat/pushkit/internal/routing"
	"github.com/moachat/pushkit/internal/worker"
)

type recordingSurface struct {
	mu      sync.Mutex
	visible map[string]*notify.Descriptor
}

func (s *recordingSurface) Notify(tag string, d *notify.Descriptor, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[tag] = d
	return nil
}

func (s *recordingSurface) Close(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visible, tag)
	return nil
}

type apiFixture struct {
	controller *Controller
	surface    *recordingSurface
	broadcast  *routing.InProcBroadcast
	registry   *worker.InProcRegistry

	mu     sync.Mutex
	opened []string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	m, err := metrics.NewMetrics()
	require.NoError(t, err)
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)

	f := &apiFixture{
		surface:   &recordingSurface{visible: make(map[string]*notify.Descriptor)},
		broadcast: routing.NewInProcBroadcast(),
	}
	t.Cleanup(func() { _ = f.broadcast.Close() })

	settings := &conf.Settings{
		BaseURL: "https://chat.example.com",
		Worker: conf.WorkerSettings{
			CacheVersion:   "v3",
			PrecacheRoutes: []string{"/", "/chat"},
			Defaults: conf.NotificationDefaults{
				Title: "새 메시지",
				Body:  "새로운 메시지가 도착했습니다.",
			},
		},
		WebServer: conf.WebServerSettings{Port: 0},
	}

	f.registry = worker.NewInProcRegistry(func(_ context.Context, url string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.opened = append(f.opened, url)
		return nil
	})

	caches := cachegen.NewManager(cachegen.NewMemoryStorage(), settings.Worker.CacheVersion, settings.Worker.PrecacheRoutes, nil, log)
	presenter := notify.NewPresenter(f.surface, log, m.Push)
	stored := routing.NewStoredSignal(time.Minute)
	dispatcher := routing.NewDispatcher(f.registry, f.broadcast, stored, settings.BaseURL, log, m.Routing)
	runtime := worker.New(caches, presenter, dispatcher, settings.Worker.Defaults, log, m.Push)

	f.controller = New(settings, runtime, f.broadcast, f.registry, m, log)
	return f
}

func (f *apiFixture) openedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *apiFixture) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	f.controller.Echo().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) visibleTags() []string {
	f.surface.mu.Lock()
	defer f.surface.mu.Unlock()
	tags := make([]string, 0, len(f.surface.visible))
	for tag := range f.surface.visible {
		tags = append(tags, tag)
	}
	return tags
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReceivePush(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"body":"hi","data":{"roomId":"room-42"}}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	tags := f.visibleTags()
	require.Len(t, tags, 1)
	assert.Equal(t, "room-42", tags[0])
}

func TestReceivePush_EmptyBodyPresentsDefaults(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/push", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	f.surface.mu.Lock()
	d := f.surface.visible[conf.DefaultGroupKey]
	f.surface.mu.Unlock()
	require.NotNil(t, d)
	assert.Equal(t, "새 메시지", d.Title)
}

func TestListNotifications(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"data":{"roomId":"room-1"}}`)))
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"data":{"roomId":"room-2"}}`)))

	rec := f.do(http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tags  []string `json:"tags"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.ElementsMatch(t, []string{"room-1", "room-2"}, resp.Tags)
}

func TestClickNotification(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"data":{"roomId":"room-42"}}`)))

	rec := f.do(http.MethodPost, "/api/v1/notifications/room-42/click", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Notification dismissed and a window opened at the room URL.
	assert.Empty(t, f.visibleTags())
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.opened, 1)
	assert.Equal(t, "https://chat.example.com/chat/room-42", f.opened[0])
}

func TestClickNotification_DefaultGroupIsRoomless(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", nil)

	rec := f.do(http.MethodPost, "/api/v1/notifications/"+conf.DefaultGroupKey+"/click", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.opened, 1)
	assert.Equal(t, "https://chat.example.com/chat", f.opened[0])
}

func TestClickNotification_TagOnlyPushIsRoomless(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"tag":"promo","body":"weekend event"}`)))

	rec := f.do(http.MethodPost, "/api/v1/notifications/promo/click", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The push carried no room, so its tag must not be mistaken for one:
	// the click lands on the generic landing page.
	opened := f.openedURLs()
	require.Len(t, opened, 1)
	assert.Equal(t, "https://chat.example.com/chat", opened[0])
}

func TestClickNotification_RoomIDQueryOverride(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"data":{"roomId":"room-1"}}`)))

	rec := f.do(http.MethodPost, "/api/v1/notifications/room-1/click?roomId=room-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	opened := f.openedURLs()
	require.Len(t, opened, 1)
	assert.Equal(t, "https://chat.example.com/chat/room-9", opened[0])
}

func TestCloseNotification(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"data":{"roomId":"room-1"}}`)))

	rec := f.do(http.MethodDelete, "/api/v1/notifications/room-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.visibleTags())

	// No click was routed: no window opened.
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.opened)
}

func TestCacheVersion(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/cache/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "v3", resp["version"])
	assert.Equal(t, "pushkit-static-v3", resp["generation"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	f.do(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte(`{"data":{"roomId":"room-1"}}`)))

	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pushkit_notifications_shown_total")
}
