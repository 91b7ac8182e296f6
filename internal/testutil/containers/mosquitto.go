//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MosquittoContainer wraps a testcontainers Eclipse Mosquitto broker
// instance used to exercise the broadcast signal channel.
type MosquittoContainer struct {
	container  testcontainers.Container
	brokerURL  string
	host       string
	port       int
	configFile string
}

// MosquittoConfig holds configuration for container creation.
type MosquittoConfig struct {
	// Image tag (default: "2.0")
	ImageTag string
}

// DefaultMosquittoConfig returns a MosquittoConfig with sensible defaults.
func DefaultMosquittoConfig() MosquittoConfig {
	return MosquittoConfig{ImageTag: "2.0"}
}

// NewMosquittoContainer creates and starts a Mosquitto broker container
// that allows anonymous connections. If config is nil, defaults are used.
func NewMosquittoContainer(config *MosquittoConfig) (*MosquittoContainer, error) {
	if config == nil {
		defaultCfg := DefaultMosquittoConfig()
		config = &defaultCfg
	}

	ctx := context.Background()

	configFile, err := writeAnonymousConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create mosquitto config: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("eclipse-mosquitto:%s", config.ImageTag),
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor: wait.ForLog("mosquitto version").
			WithStartupTimeout(30 * time.Second),
		Cmd: []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      configFile,
				ContainerFilePath: "/mosquitto-no-auth.conf",
				FileMode:          0o644,
			},
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		_ = os.Remove(configFile)
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	cleanup := func() {
		_ = container.Terminate(ctx)
		_ = os.Remove(configFile)
	}

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "1883")
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	mc := &MosquittoContainer{
		container:  container,
		brokerURL:  fmt.Sprintf("tcp://%s", net.JoinHostPort(host, strconv.Itoa(mappedPort.Int()))),
		host:       host,
		port:       mappedPort.Int(),
		configFile: configFile,
	}

	if err := mc.HealthCheck(ctx); err != nil {
		cleanup()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return mc, nil
}

func writeAnonymousConfig() (string, error) {
	tmpFile, err := os.CreateTemp("", "mosquitto-*.conf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp config: %w", err)
	}
	content := "listener 1883\nallow_anonymous true\n"
	if _, err := tmpFile.WriteString(content); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to close temp config: %w", err)
	}
	return tmpFile.Name(), nil
}

// BrokerURL returns the broker URL (e.g. "tcp://localhost:32771").
func (c *MosquittoContainer) BrokerURL() string { return c.brokerURL }

// Host returns the host address where the broker is accessible.
func (c *MosquittoContainer) Host() string { return c.host }

// Port returns the mapped MQTT port.
func (c *MosquittoContainer) Port() int { return c.port }

// HealthCheck verifies the broker accepts connections.
func (c *MosquittoContainer) HealthCheck(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.brokerURL)
	opts.SetClientID("healthcheck")
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("health check timeout after 5s")
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", token.Error())
	}
	client.Disconnect(250)
	return nil
}

// Terminate stops the container and removes the temp config file.
func (c *MosquittoContainer) Terminate() error {
	var terminateErr error
	if c.container != nil {
		if err := c.container.Terminate(context.Background()); err != nil {
			terminateErr = fmt.Errorf("failed to terminate container: %w", err)
		}
	}
	if c.configFile != "" {
		if err := os.Remove(c.configFile); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: failed to remove temp config file %s: %v\n", c.configFile, err)
		}
	}
	return terminateErr
}
