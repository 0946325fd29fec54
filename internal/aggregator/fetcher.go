package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/models"
	"github.com/usagedeck/usagedeck/internal/proxy"
)

// Provider usage endpoints. The proxy resolves the token placeholder with
// the credential selected by auth-index, so the requests here carry no
// secrets.
const (
	claudeUsageURL  = "https://api.anthropic.com/api/oauth/usage"
	codexUsageURL   = "https://chatgpt.com/backend-api/codex/usage"
	geminiQuotaURL  = "https://cloudcode-pa.googleapis.com/v1internal:retrieveUserQuota"
	geminiQuotaBody = "{}"
)

// ProxyCaller is the slice of the proxy client the fetcher needs.
type ProxyCaller interface {
	ExecuteCall(ctx context.Context, call proxy.CallRequest) (*proxy.CallResult, error)
}

// Fetcher fans out usage calls for classified account buckets.
type Fetcher struct {
	caller      ProxyCaller
	callTimeout time.Duration
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewFetcher creates a Fetcher. metrics may be nil.
func NewFetcher(caller ProxyCaller, callTimeout time.Duration, logger *logging.Logger, m *metrics.Metrics) *Fetcher {
	if callTimeout <= 0 {
		callTimeout = 8 * time.Second
	}
	return &Fetcher{
		caller:      caller,
		callTimeout: callTimeout,
		logger:      logger,
		metrics:     m,
	}
}

// FetchAll issues one usage call per account and returns one slot per
// input account, same order and length. A timeout, transport error,
// non-2xx status, or unparsable body all settle the slot to nil; no
// failure propagates to sibling accounts.
func (f *Fetcher) FetchAll(ctx context.Context, accounts []models.ProxyAccount, kind models.ProviderKind) []json.RawMessage {
	results := make([]json.RawMessage, len(accounts))

	var wg sync.WaitGroup
	for i := range accounts {
		wg.Add(1)
		go func(slot int, acc models.ProxyAccount) {
			defer wg.Done()
			results[slot] = f.fetchOne(ctx, acc, kind)
		}(i, accounts[i])
	}
	wg.Wait()

	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, acc models.ProxyAccount, kind models.ProviderKind) json.RawMessage {
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	call, ok := usageCall(acc, kind)
	if !ok {
		return nil
	}

	result, err := f.caller.ExecuteCall(callCtx, call)
	if err != nil {
		f.recordFetch(kind, "error")
		f.logger.Warn("provider usage call failed",
			"provider", string(kind),
			"account", acc.Identity(),
			"error", err.Error())
		return nil
	}
	if !result.OK() {
		f.recordFetch(kind, "upstream_error")
		f.logger.Warn("provider usage call returned error status",
			"provider", string(kind),
			"account", acc.Identity(),
			"status", result.StatusCode)
		return nil
	}

	raw := json.RawMessage(result.Body)
	if !json.Valid(raw) {
		f.recordFetch(kind, "parse_error")
		f.logger.Warn("provider usage response is not valid JSON",
			"provider", string(kind),
			"account", acc.Identity())
		return nil
	}

	f.recordFetch(kind, "ok")
	return raw
}

func (f *Fetcher) recordFetch(kind models.ProviderKind, outcome string) {
	if f.metrics != nil {
		f.metrics.RecordProviderFetch(string(kind), outcome)
	}
}

// usageCall builds the proxied request for one account. The second return
// is false for provider families without a usage endpoint.
func usageCall(acc models.ProxyAccount, kind models.ProviderKind) (proxy.CallRequest, bool) {
	switch kind {
	case models.ProviderClaude:
		return proxy.CallRequest{
			AuthIndex: acc.AuthIndex,
			Method:    http.MethodGet,
			URL:       claudeUsageURL,
			Header: map[string][]string{
				"Authorization":     {"Bearer " + proxy.TokenPlaceholder},
				"anthropic-beta":    {"oauth-2025-04-20"},
				"anthropic-version": {"2023-06-01"},
			},
		}, true
	case models.ProviderCodex:
		return proxy.CallRequest{
			AuthIndex: acc.AuthIndex,
			Method:    http.MethodGet,
			URL:       codexUsageURL,
			Header: map[string][]string{
				"Authorization": {"Bearer " + proxy.TokenPlaceholder},
			},
		}, true
	case models.ProviderGemini:
		return proxy.CallRequest{
			AuthIndex: acc.AuthIndex,
			Method:    http.MethodPost,
			URL:       geminiQuotaURL,
			Header: map[string][]string{
				"Authorization": {"Bearer " + proxy.TokenPlaceholder},
				"Content-Type":  {"application/json"},
			},
			Body: geminiQuotaBody,
		}, true
	default:
		return proxy.CallRequest{}, false
	}
}
