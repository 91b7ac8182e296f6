// Package conf holds the runtime settings for pushkit, loaded with Viper
// from a YAML config file and environment overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultGroupKey is the sentinel grouping tag for pushes that carry no room
// identifier. It must be stable so tagless pushes coalesce with each other.
const DefaultGroupKey = "general"

// MaxStoredSignalTTL caps worker.storedsignalttl. It doubles as the click
// relay's duplicate-filter window, so a stored click polled late can never
// outlive the dedupe entry that would suppress its replay.
const MaxStoredSignalTTL = 10 * time.Minute

// NotificationDefaults is the descriptor used when a push payload is absent
// or unparseable. The user must still see something.
type NotificationDefaults struct {
	Title string `yaml:"title" mapstructure:"title"`
	Body  string `yaml:"body" mapstructure:"body"`
	Icon  string `yaml:"icon" mapstructure:"icon"`
	Badge string `yaml:"badge" mapstructure:"badge"`
}

// WorkerSettings configures the background worker runtime.
type WorkerSettings struct {
	// CacheVersion names the current cache generation. Bumping it retires
	// every previously installed generation on activation.
	CacheVersion string `yaml:"cacheversion" mapstructure:"cacheversion"`
	// PrecacheRoutes is the fixed set of shell routes warmed on install.
	PrecacheRoutes []string `yaml:"precacheroutes" mapstructure:"precacheroutes"`
	// BroadcastTopic is the well-known broadcast channel name shared by the
	// worker and every page context for click routing.
	BroadcastTopic string `yaml:"broadcasttopic" mapstructure:"broadcasttopic"`
	// StoredSignalTTL bounds how long a routed click stays in the
	// stored-and-polled fallback channel.
	StoredSignalTTL Duration             `yaml:"storedsignalttl" mapstructure:"storedsignalttl"`
	Defaults        NotificationDefaults `yaml:"defaults" mapstructure:"defaults"`
}

// PageSettings tunes the in-page lifecycle and reconnection machinery.
type PageSettings struct {
	// DebounceWindow coalesces bursts of foreground signals into one
	// transition. Short enough to feel instant.
	DebounceWindow Duration `yaml:"debouncewindow" mapstructure:"debouncewindow"`
	// LivenessInterval is the periodic connection check while foreground.
	// Long enough to avoid thrashing.
	LivenessInterval Duration `yaml:"livenessinterval" mapstructure:"livenessinterval"`
	// RejoinGrace is the delay between reconnect and room rejoin, allowing
	// the transport handshake to complete.
	RejoinGrace Duration `yaml:"rejoingrace" mapstructure:"rejoingrace"`
	// StoredPollInterval is how often a page polls the stored-signal
	// fallback channel.
	StoredPollInterval Duration `yaml:"storedpollinterval" mapstructure:"storedpollinterval"`
}

// RealtimeSettings locates the realtime transport endpoint.
type RealtimeSettings struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// MQTTSettings configures the optional MQTT-backed broadcast channel used
// when page contexts live in separate processes.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	ClientID string `yaml:"clientid" mapstructure:"clientid"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// NotifierSettings configures the OS-notification delivery surface.
type NotifierSettings struct {
	// URLs are shoutrrr service URLs; each presented notification is sent
	// to all of them.
	URLs []string `yaml:"urls" mapstructure:"urls"`
}

// WebServerSettings configures the local HTTP surface (SSE direct channel,
// shell-route listing).
type WebServerSettings struct {
	Port  int  `yaml:"port" mapstructure:"port"`
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// StoreSettings locates the durable cache-generation store.
type StoreSettings struct {
	// Path is the sqlite database file. Empty selects the in-memory store.
	Path string `yaml:"path" mapstructure:"path"`
}

// Settings is the root configuration object.
type Settings struct {
	BaseURL   string            `yaml:"baseurl" mapstructure:"baseurl"`
	Worker    WorkerSettings    `yaml:"worker" mapstructure:"worker"`
	Page      PageSettings      `yaml:"page" mapstructure:"page"`
	Realtime  RealtimeSettings  `yaml:"realtime" mapstructure:"realtime"`
	MQTT      MQTTSettings      `yaml:"mqtt" mapstructure:"mqtt"`
	Notifier  NotifierSettings  `yaml:"notifier" mapstructure:"notifier"`
	WebServer WebServerSettings `yaml:"webserver" mapstructure:"webserver"`
	Sentry    SentrySettings    `yaml:"sentry" mapstructure:"sentry"`
	Store     StoreSettings     `yaml:"store" mapstructure:"store"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("baseurl", "http://localhost:8080")
	v.SetDefault("worker.cacheversion", "v1")
	v.SetDefault("worker.precacheroutes", []string{"/", "/chat", "/friends", "/settings"})
	v.SetDefault("worker.broadcasttopic", "pushkit/notification-clicks")
	v.SetDefault("worker.storedsignalttl", "30s")
	v.SetDefault("worker.defaults.title", "새 메시지")
	v.SetDefault("worker.defaults.body", "새로운 메시지가 도착했습니다.")
	v.SetDefault("worker.defaults.icon", "/icons/icon-192.png")
	v.SetDefault("worker.defaults.badge", "/icons/badge-72.png")
	v.SetDefault("page.debouncewindow", "100ms")
	v.SetDefault("page.livenessinterval", "3s")
	v.SetDefault("page.rejoingrace", "400ms")
	v.SetDefault("page.storedpollinterval", "1s")
	v.SetDefault("webserver.port", 8090)
	v.SetDefault("webserver.debug", false)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.clientid", "pushkit-worker")
}

// Load reads settings from the given config file (optional) plus PUSHKIT_*
// environment overrides, applying defaults for everything unset.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("pushkit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate rejects settings that would make the runtime misbehave in ways
// that are hard to diagnose at a distance from the config mistake.
func (s *Settings) Validate() error {
	if s.Worker.CacheVersion == "" {
		return fmt.Errorf("worker.cacheversion must not be empty")
	}
	if s.Worker.BroadcastTopic == "" {
		return fmt.Errorf("worker.broadcasttopic must not be empty")
	}
	if s.Worker.StoredSignalTTL.Std() <= 0 || s.Worker.StoredSignalTTL.Std() > MaxStoredSignalTTL {
		return fmt.Errorf("worker.storedsignalttl %s out of range (0..%s); a stored click must expire before its duplicate-filter entry does", s.Worker.StoredSignalTTL.Std(), MaxStoredSignalTTL)
	}
	if s.Page.DebounceWindow.Std() < 0 || s.Page.DebounceWindow.Std() > time.Second {
		return fmt.Errorf("page.debouncewindow %s out of range (0..1s)", s.Page.DebounceWindow.Std())
	}
	if s.Page.LivenessInterval.Std() < 500*time.Millisecond {
		return fmt.Errorf("page.livenessinterval %s too short; the liveness poll is a safety net, not a spin loop", s.Page.LivenessInterval.Std())
	}
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker required when mqtt.enabled is true")
	}
	return nil
}
