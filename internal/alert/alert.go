// Package alert forwards detected anomalies to external webhooks.
package alert

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"github.com/HerbHall/driftwatch/pkg/stream"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Config controls anomaly notification delivery.
type Config struct {
	// WebhookURL is the delivery target. Empty disables notification.
	WebhookURL string `mapstructure:"webhook_url"`

	// Secret, when set, signs each payload with HMAC-SHA256 in the
	// X-Signature header.
	Secret string `mapstructure:"secret"`

	// Headers are extra headers added to each request.
	Headers map[string]string `mapstructure:"headers"`

	// MinSeverity filters deliveries: "warning" sends everything,
	// "critical" only critical anomalies.
	MinSeverity string `mapstructure:"min_severity"`

	// Timeout bounds each delivery attempt.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the alert defaults.
func DefaultConfig() Config {
	return Config{
		MinSeverity: stream.SeverityWarning,
		Timeout:     10 * time.Second,
	}
}

// Module implements the alert plugin. It listens for anomaly and source
// failure events and forwards them to the configured notifier.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	notifier Notifier

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// New creates the alert plugin.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "alert",
		Version:     "0.1.0",
		Description: "Webhook anomaly notifications",
		Roles:       []string{"alerting"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal alert config: %w", err)
		}
	}

	switch m.cfg.MinSeverity {
	case stream.SeverityWarning, stream.SeverityCritical:
	default:
		return fmt.Errorf("min_severity must be %q or %q, got %q",
			stream.SeverityWarning, stream.SeverityCritical, m.cfg.MinSeverity)
	}

	if m.cfg.WebhookURL != "" {
		m.notifier = NewWebhookNotifier(m.cfg)
		m.logger.Info("alert module initialized",
			zap.String("notifier", m.notifier.Type()),
			zap.String("min_severity", m.cfg.MinSeverity),
		)
	} else {
		m.logger.Info("alert module initialized without webhook url, notifications disabled")
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: stream.TopicAnomaly, Handler: m.handleAnomaly},
		{Topic: stream.TopicSourceFailed, Handler: m.handleSourceFailed},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	status := "healthy"
	if m.notifier == nil {
		status = "degraded"
	}
	return plugin.HealthStatus{
		Status: status,
		Details: map[string]string{
			"delivered": strconv.FormatUint(m.delivered.Load(), 10),
			"failed":    strconv.FormatUint(m.failed.Load(), 10),
		},
	}
}

func (m *Module) handleAnomaly(ctx context.Context, event plugin.Event) {
	rec, ok := event.Payload.(*stream.AnomalyRecord)
	if !ok {
		m.logger.Debug("ignored anomaly event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}

	if m.cfg.MinSeverity == stream.SeverityCritical && rec.Severity != stream.SeverityCritical {
		return
	}

	m.deliver(ctx, "anomaly.detected", rec)
}

func (m *Module) handleSourceFailed(ctx context.Context, event plugin.Event) {
	m.logger.Warn("stream source failed", zap.Any("error", event.Payload))
	m.deliver(ctx, "source.failed", nil)
}

func (m *Module) deliver(ctx context.Context, eventType string, rec *stream.AnomalyRecord) {
	if m.notifier == nil {
		return
	}

	if err := m.notifier.Notify(ctx, eventType, rec); err != nil {
		m.failed.Add(1)
		m.logger.Warn("notification delivery failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	m.delivered.Add(1)
}
