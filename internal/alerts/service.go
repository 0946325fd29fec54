// Package alerts turns aggregation reports into threshold notifications.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/models"
)

// Notifier delivers one alert message.
type Notifier interface {
	Enabled() bool
	Send(text string) error
}

// Service evaluates usage reports and notifies on danger-tier windows.
type Service struct {
	notifier Notifier
	dedup    *DedupStore
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	enabled bool
}

// NewService creates an alert service. metrics may be nil.
func NewService(notifier Notifier, dedupWindow time.Duration, enabled bool, logger *logging.Logger, m *metrics.Metrics) *Service {
	return &Service{
		notifier: notifier,
		dedup:    NewDedupStore(dedupWindow),
		logger:   logger,
		metrics:  m,
		enabled:  enabled,
	}
}

// Evaluate scans the report for Claude-family windows in the danger tier
// and sends one deduplicated notification per (account, metric). Send
// failures are logged, never propagated; alerting must not affect the
// aggregation result.
func (s *Service) Evaluate(report *models.UsageReport) {
	if !s.Enabled() || s.notifier == nil || !s.notifier.Enabled() || report == nil {
		return
	}

	s.dedup.Cleanup()

	for i := range report.Accounts {
		acc := &report.Accounts[i]
		if acc.Status != models.StatusActive {
			continue
		}
		identity := acc.Email
		if identity == "" {
			identity = acc.Name
		}

		for _, metric := range models.SnapshotMetrics() {
			window := acc.Window(metric)
			tier := models.ClassifyGauge(window.Utilization, window.ResetsAt != nil)
			if tier != models.TierDanger {
				continue
			}

			key := identity + "|" + string(metric)
			if s.dedup.IsDuplicate(key) {
				continue
			}

			if err := s.notifier.Send(formatAlert(identity, metric, window)); err != nil {
				s.logger.Warn("alert delivery failed",
					"account", identity,
					"metric", string(metric),
					"error", err.Error())
				s.recordAlert("error")
				continue
			}
			s.dedup.Record(key)
			s.recordAlert("ok")
		}
	}
}

// Enabled reports whether evaluation is currently switched on.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled flips alert evaluation on or off. The config hot-reload path
// calls this when the file changes; dedup state survives a toggle.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Service) recordAlert(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAlert("telegram", outcome)
	}
}

func formatAlert(account string, metric models.Metric, window models.ClaudeWindow) string {
	text := fmt.Sprintf("⚠️ *%s*: %s window at %.0f%% utilization", account, metricLabel(metric), window.Utilization)
	if window.ResetsAt != nil {
		text += fmt.Sprintf("\nResets at %s", window.ResetsAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return text
}

func metricLabel(metric models.Metric) string {
	switch metric {
	case models.MetricFiveHour:
		return "5-hour"
	case models.MetricSevenDay:
		return "7-day"
	case models.MetricSevenDaySonnet:
		return "7-day Sonnet"
	default:
		return string(metric)
	}
}
