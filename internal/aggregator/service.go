package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/models"
)

// AccountSource lists credential records from the management proxy.
type AccountSource interface {
	ProxyCaller
	Configured() bool
	ListAccounts(ctx context.Context) ([]models.ProxyAccount, error)
}

// Recorder receives the normalized report of each cycle for the write-behind
// snapshot path. Implementations must not block.
type Recorder interface {
	Record(report *models.UsageReport)
}

// Alerter evaluates a report for threshold alerts. Implementations must
// not block.
type Alerter interface {
	Evaluate(report *models.UsageReport)
}

// Options configures a Service.
type Options struct {
	HiddenAccounts []string
	CallTimeout    time.Duration
	ScheduleEvery  time.Duration
}

// Service runs aggregation cycles: list accounts, classify, fan out usage
// calls per provider, normalize, then hand the report to the side
// pipelines.
type Service struct {
	source   AccountSource
	fetcher  *Fetcher
	recorder Recorder
	alerter  Alerter
	logger   *logging.Logger
	metrics  *metrics.Metrics
	opts     Options

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewService creates an aggregation service. recorder, alerter, and m may
// be nil.
func NewService(source AccountSource, recorder Recorder, alerter Alerter, logger *logging.Logger, m *metrics.Metrics, opts Options) *Service {
	return &Service{
		source:   source,
		fetcher:  NewFetcher(source, opts.CallTimeout, logger, m),
		recorder: recorder,
		alerter:  alerter,
		logger:   logger,
		metrics:  m,
		opts:     opts,
	}
}

// Aggregate runs one full cycle and returns the normalized report. The
// error is non-nil only for whole-cycle failures: an unconfigured proxy or
// an unreachable management endpoint. Per-account failures are represented
// inside the report.
func (s *Service) Aggregate(ctx context.Context) (*models.UsageReport, error) {
	if !s.source.Configured() {
		s.recordCycle("not_configured")
		return nil, &apperrors.ErrNotConfigured{Missing: "proxy endpoint or management key"}
	}

	accounts, err := s.source.ListAccounts(ctx)
	if err != nil {
		s.recordCycle("proxy_error")
		return nil, err
	}

	buckets := Classify(accounts, s.hiddenAccounts())
	s.logger.InfoWithContext(ctx, "aggregation cycle started",
		"accounts", len(accounts),
		"claude", len(buckets.Claude),
		"codex", len(buckets.Codex),
		"gemini", len(buckets.Gemini))

	var (
		wg        sync.WaitGroup
		claudeRaw []json.RawMessage
		codexRaw  []json.RawMessage
		geminiRaw []json.RawMessage
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		claudeRaw = s.fetcher.FetchAll(ctx, buckets.Claude, models.ProviderClaude)
	}()
	go func() {
		defer wg.Done()
		codexRaw = s.fetcher.FetchAll(ctx, buckets.Codex, models.ProviderCodex)
	}()
	go func() {
		defer wg.Done()
		geminiRaw = s.fetcher.FetchAll(ctx, buckets.Gemini, models.ProviderGemini)
	}()
	wg.Wait()

	report := &models.UsageReport{
		Accounts:    make([]models.ClaudeAccountUsage, 0, len(buckets.Claude)),
		Codex:       make([]models.CodexAccountUsage, 0, len(buckets.Codex)),
		Gemini:      make([]models.GeminiAccountUsage, 0, len(buckets.Gemini)),
		CollectedAt: time.Now().UTC(),
	}
	for i, acc := range buckets.Claude {
		report.Accounts = append(report.Accounts, NormalizeClaude(acc, claudeRaw[i]))
	}
	for i, acc := range buckets.Codex {
		report.Codex = append(report.Codex, NormalizeCodex(acc, codexRaw[i]))
	}
	for i, acc := range buckets.Gemini {
		report.Gemini = append(report.Gemini, NormalizeGemini(acc, geminiRaw[i]))
	}

	s.publishGauges(report)
	if s.recorder != nil {
		s.recorder.Record(report)
	}
	if s.alerter != nil {
		s.alerter.Evaluate(report)
	}

	s.recordCycle("ok")
	return report, nil
}

// SetHiddenAccounts replaces the exclusion list. The next cycle picks it
// up; the config hot-reload path calls this when the file changes.
func (s *Service) SetHiddenAccounts(hidden []string) {
	s.mu.Lock()
	s.opts.HiddenAccounts = append([]string(nil), hidden...)
	s.mu.Unlock()
}

func (s *Service) hiddenAccounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.HiddenAccounts
}

// Start launches the periodic aggregation loop. It is a no-op when the
// schedule interval is not positive or the loop is already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.ScheduleEvery <= 0 || s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
	s.logger.Info("aggregation scheduler started", "interval", s.opts.ScheduleEvery.String())
}

// Stop stops the periodic loop and waits for the in-flight cycle.
func (s *Service) Stop() {
	s.mu.Lock()
	stopChan, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-done
}

func (s *Service) run(stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.ScheduleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())
			if _, err := s.Aggregate(ctx); err != nil {
				s.logger.WarnWithContext(ctx, "scheduled aggregation failed", "error", err.Error())
			}
		}
	}
}

func (s *Service) publishGauges(report *models.UsageReport) {
	if s.metrics == nil {
		return
	}
	for i := range report.Accounts {
		acc := &report.Accounts[i]
		if acc.Status != models.StatusActive {
			continue
		}
		identity := accountIdentity(acc.Email, acc.Name)
		for _, metric := range models.SnapshotMetrics() {
			s.metrics.RecordAccountUtilization(identity, string(metric), acc.Window(metric).Utilization)
		}
	}
}

func (s *Service) recordCycle(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAggregationCycle(outcome)
	}
}

func accountIdentity(email, name string) string {
	if email != "" {
		return email
	}
	return name
}
