package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/warbandhq/warband/pkg/events"
)

const postTimeout = 10 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when the service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack_service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack_service"),
	}
}

// NotifyRunCompleted posts a run completion message.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyRunCompleted(ctx context.Context, input RunCompletedInput) {
	if s == nil {
		return
	}
	blocks := BuildRunCompletedMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, postTimeout); err != nil {
		s.logger.Warn("Failed to send run completion notification",
			"run_id", input.RunID, "error", err)
	}
}

// NotifySuiteCompleted posts a suite completion message.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifySuiteCompleted(ctx context.Context, input SuiteCompletedInput) {
	if s == nil {
		return
	}
	blocks := BuildSuiteCompletedMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, postTimeout); err != nil {
		s.logger.Warn("Failed to send suite completion notification",
			"suite_id", input.SuiteID, "error", err)
	}
}

// Observer adapts the service to the event hub. Delivery happens on its own
// goroutine so a slow Slack API call never stalls the publisher.
type Observer struct {
	events.NoopObserver
	service *Service
}

// NewObserver wraps a service for registration with the event publisher.
// Returns nil when the service is nil so callers can skip registration.
func NewObserver(service *Service) *Observer {
	if service == nil {
		return nil
	}
	return &Observer{service: service}
}

// OnRunCompleted delivers a run completion notification asynchronously.
func (o *Observer) OnRunCompleted(p events.RunCompletedPayload) {
	go o.service.NotifyRunCompleted(context.Background(), RunCompletedInput{
		RunID:        p.RunID,
		RouteName:    p.RouteName,
		Status:       p.Status,
		BotsPassed:   p.BotsPassed,
		BotsFailed:   p.BotsFailed,
		BotsTotal:    p.BotsTotal,
		Duration:     time.Duration(p.DurationMS) * time.Millisecond,
		ErrorMessage: p.ErrorMessage,
	})
}

// OnSuiteCompleted delivers a suite completion notification asynchronously.
func (o *Observer) OnSuiteCompleted(p events.SuiteCompletedPayload) {
	go o.service.NotifySuiteCompleted(context.Background(), SuiteCompletedInput{
		SuiteID:      p.SuiteID,
		Name:         p.Name,
		Status:       p.Status,
		TestsPassed:  p.TestsPassed,
		TestsFailed:  p.TestsFailed,
		TestsSkipped: p.TestsSkipped,
		TotalTests:   p.TotalTests,
		Duration:     time.Duration(p.DurationMS) * time.Millisecond,
		ErrorMessage: p.ErrorMessage,
	})
}
