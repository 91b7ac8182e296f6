package routing

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/logger"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttOpTimeout      = 5 * time.Second
	// mqttDisconnectQuiesceMs is passed to Disconnect to let in-flight
	// messages drain.
	mqttDisconnectQuiesceMs = 250
)

// MQTTBroadcast carries click events across processes over an MQTT topic.
// It lets a worker runtime in one process reach page sessions in another,
// the cross-instance counterpart of InProcBroadcast.
type MQTTBroadcast struct {
	client mqtt.Client
	topic  string
	log    logger.Logger
}

// NewMQTTBroadcast connects to the configured broker and returns a broadcast
// channel bound to topic.
func NewMQTTBroadcast(settings conf.MQTTSettings, topic string, log logger.Logger) (*MQTTBroadcast, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", logger.Error(err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("mqtt connected", logger.String("broker", settings.Broker))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	return &MQTTBroadcast{
		client: client,
		topic:  topic,
		log:    log,
	}, nil
}

// Publish sends payload to the topic at QoS 1. At-least-once suits the
// routing contract: receivers dedupe by EventID.
func (b *MQTTBroadcast) Publish(payload []byte) error {
	token := b.client.Publish(b.topic, 1, false, payload)
	if !token.WaitTimeout(mqttOpTimeout) {
		return fmt.Errorf("mqtt publish timeout after %s", mqttOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.topic, err)
	}
	return nil
}

// Subscribe registers fn for messages on the topic. paho keeps one handler
// per topic, so use one MQTTBroadcast per consumer.
func (b *MQTTBroadcast) Subscribe(fn PayloadHandler) (cancel func()) {
	token := b.client.Subscribe(b.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Payload())
	})
	if !token.WaitTimeout(mqttOpTimeout) || token.Error() != nil {
		b.log.Error("mqtt subscribe failed",
			logger.String("topic", b.topic),
			logger.Error(token.Error()))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub := b.client.Unsubscribe(b.topic)
			if !unsub.WaitTimeout(mqttOpTimeout) || unsub.Error() != nil {
				b.log.Warn("mqtt unsubscribe failed",
					logger.String("topic", b.topic),
					logger.Error(unsub.Error()))
			}
		})
	}
}

// Close disconnects from the broker.
func (b *MQTTBroadcast) Close() error {
	b.client.Disconnect(mqttDisconnectQuiesceMs)
	return nil
}
