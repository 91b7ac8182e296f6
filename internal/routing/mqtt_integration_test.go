//go:build integration

package routing

import (
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/testutil/containers"
)

var broker *containers.MosquittoContainer

func TestMain(m *testing.M) {
	var err error
	broker, err = containers.NewMosquittoContainer(nil)
	if err != nil {
		log.Fatalf("failed to start mosquitto: %v", err)
	}
	code := m.Run()
	_ = broker.Terminate()
	os.Exit(code)
}

func newBrokerBroadcast(t *testing.T, clientID string) *MQTTBroadcast {
	t.Helper()
	settings := conf.MQTTSettings{
		Enabled:  true,
		Broker:   broker.BrokerURL(),
		ClientID: clientID,
	}
	logg := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	b, err := NewMQTTBroadcast(settings, "pushkit/test/notification-clicks", logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestMQTTBroadcast_PublishReachesOtherInstance(t *testing.T) {
	publisher := newBrokerBroadcast(t, "pushkit-pub")
	subscriber := newBrokerBroadcast(t, "pushkit-sub")

	rec := &payloadRecorder{}
	cancel := subscriber.Subscribe(rec.handle)
	defer cancel()

	ev := NewClickEvent("room-42", "https://chat.example.com")
	payload, err := ev.Encode()
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(payload))

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 10*time.Second, 50*time.Millisecond)
}

func TestMQTTBroadcast_FeedsRelayAcrossInstances(t *testing.T) {
	publisher := newBrokerBroadcast(t, "pushkit-pub-relay")
	subscriber := newBrokerBroadcast(t, "pushkit-sub-relay")

	view := &mockView{currentRoom: "room-1"}
	relay := newTestRelay(t, view, nil, 0)
	relay.Attach(subscriber)
	relay.Start()
	defer relay.Stop()

	ev := NewClickEvent("room-9", "https://chat.example.com")
	payload, err := ev.Encode()
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(payload))

	require.Eventually(t, func() bool {
		_, navigations, _, _, _ := view.snapshot()
		return len(navigations) == 1
	}, 10*time.Second, 50*time.Millisecond)

	_, navigations, _, _, _ := view.snapshot()
	assert.Equal(t, []string{"/chat/room-9"}, navigations)
}

func TestMQTTBroadcast_ConnectFailure(t *testing.T) {
	settings := conf.MQTTSettings{
		Enabled:  true,
		Broker:   "tcp://127.0.0.1:1",
		ClientID: "pushkit-dead",
	}
	logg := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	_, err := NewMQTTBroadcast(settings, "pushkit/test", logg)
	require.Error(t, err)
}
