package aggregator

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/usagedeck/usagedeck/internal/models"
)

// Raw payload shapes for the three upstream usage contracts. Only the
// fields the normalizer reads are declared; everything else is ignored.

type claudeUsagePayload struct {
	FiveHour       *claudeWindowPayload `json:"five_hour"`
	SevenDay       *claudeWindowPayload `json:"seven_day"`
	SevenDaySonnet *claudeWindowPayload `json:"seven_day_sonnet"`
}

type claudeWindowPayload struct {
	Utilization float64    `json:"utilization"`
	ResetsAt    *time.Time `json:"resets_at"`
}

type codexUsagePayload struct {
	PlanType            string                 `json:"plan_type"`
	RateLimit           *codexRateLimitPayload `json:"rate_limit"`
	CodeReviewRateLimit *codexRateLimitPayload `json:"code_review_rate_limit"`
}

type codexRateLimitPayload struct {
	Primary   *codexWindowPayload `json:"primary_window"`
	Secondary *codexWindowPayload `json:"secondary_window"`
}

type codexWindowPayload struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int64   `json:"limit_window_seconds"`
	ResetAfterSeconds  int64   `json:"reset_after_seconds"`
	ResetAt            int64   `json:"reset_at"`
}

type geminiQuotaPayload struct {
	Buckets []geminiBucketPayload `json:"buckets"`
}

type geminiBucketPayload struct {
	ModelID           string  `json:"modelId"`
	RemainingFraction float64 `json:"remainingFraction"`
	ResetTime         string  `json:"resetTime"`
}

// NormalizeClaude maps one Claude-family account and its raw usage body
// (nil when the fetch failed) into the uniform record. It never fails;
// missing data degrades to zero windows and the status fields carry the
// failure signal.
func NormalizeClaude(acc models.ProxyAccount, raw json.RawMessage) models.ClaudeAccountUsage {
	usage := models.ClaudeAccountUsage{
		Name:           acc.Name,
		Email:          acc.Email,
		Status:         accountStatus(acc),
		StatusMessage:  acc.StatusMessage,
		PlanType:       acc.PlanType,
		FiveHour:       models.DefaultClaudeWindow(),
		SevenDay:       models.DefaultClaudeWindow(),
		SevenDaySonnet: models.DefaultClaudeWindow(),
	}
	if usage.PlanType == "" {
		usage.PlanType = models.DefaultClaudePlan
	}

	if raw == nil {
		if usage.Status == models.StatusActive {
			usage.Status = models.StatusError
			usage.StatusMessage = "usage fetch failed"
		}
		return usage
	}

	var payload claudeUsagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		usage.Status = models.StatusError
		usage.StatusMessage = "unparsable usage response"
		return usage
	}

	usage.FiveHour = claudeWindow(payload.FiveHour)
	usage.SevenDay = claudeWindow(payload.SevenDay)
	usage.SevenDaySonnet = claudeWindow(payload.SevenDaySonnet)
	return usage
}

func claudeWindow(p *claudeWindowPayload) models.ClaudeWindow {
	if p == nil {
		return models.DefaultClaudeWindow()
	}
	return models.ClaudeWindow{
		Utilization: p.Utilization,
		ResetsAt:    p.ResetsAt,
	}
}

// NormalizeCodex maps one Codex-family account and its raw usage body into
// the uniform record. A missing primary window is defaulted to zeros; the
// secondary window stays nil when the plan has none.
func NormalizeCodex(acc models.ProxyAccount, raw json.RawMessage) models.CodexAccountUsage {
	usage := models.CodexAccountUsage{
		Name:          acc.Name,
		Email:         acc.Email,
		Status:        accountStatus(acc),
		StatusMessage: acc.StatusMessage,
		PlanType:      acc.PlanType,
	}
	if usage.PlanType == "" {
		usage.PlanType = models.DefaultCodexPlan
	}
	usage.RateLimit = models.CodexRateLimit{Primary: models.DefaultCodexWindow()}
	usage.CodeReview = models.CodexRateLimit{Primary: models.DefaultCodexWindow()}

	if raw == nil {
		if usage.Status == models.StatusActive {
			usage.Status = models.StatusError
			usage.StatusMessage = "usage fetch failed"
		}
		return usage
	}

	var payload codexUsagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		usage.Status = models.StatusError
		usage.StatusMessage = "unparsable usage response"
		return usage
	}

	if payload.PlanType != "" {
		usage.PlanType = payload.PlanType
	}
	usage.RateLimit = codexRateLimit(payload.RateLimit)
	usage.CodeReview = codexRateLimit(payload.CodeReviewRateLimit)
	return usage
}

func codexRateLimit(p *codexRateLimitPayload) models.CodexRateLimit {
	limit := models.CodexRateLimit{Primary: models.DefaultCodexWindow()}
	if p == nil {
		return limit
	}
	if p.Primary != nil {
		limit.Primary = codexWindow(*p.Primary)
	}
	if p.Secondary != nil {
		w := codexWindow(*p.Secondary)
		limit.Secondary = &w
	}
	return limit
}

func codexWindow(p codexWindowPayload) models.CodexWindow {
	return models.CodexWindow{
		UsedPercent:        p.UsedPercent,
		LimitWindowSeconds: p.LimitWindowSeconds,
		ResetAfterSeconds:  p.ResetAfterSeconds,
		ResetAt:            p.ResetAt,
	}
}

// NormalizeGemini maps one Gemini-family account and its raw quota body
// into the uniform record. The representative bucket is the first whose
// model id contains "pro" but not "vertex". Quota stays nil when the
// upstream call never succeeded, which is distinct from a bucket with
// zero usage.
func NormalizeGemini(acc models.ProxyAccount, raw json.RawMessage) models.GeminiAccountUsage {
	usage := models.GeminiAccountUsage{
		Name:          acc.Name,
		Email:         acc.Email,
		Status:        accountStatus(acc),
		StatusMessage: acc.StatusMessage,
	}

	if raw == nil {
		if usage.Status == models.StatusActive {
			usage.Status = models.StatusError
			usage.StatusMessage = "quota fetch failed"
		}
		return usage
	}

	var payload geminiQuotaPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		usage.Status = models.StatusError
		usage.StatusMessage = "unparsable quota response"
		return usage
	}

	for _, bucket := range payload.Buckets {
		id := strings.ToLower(bucket.ModelID)
		if !strings.Contains(id, "pro") || strings.Contains(id, "vertex") {
			continue
		}
		usage.Quota = &models.GeminiQuota{
			ModelID:   bucket.ModelID,
			Used:      math.Round((1 - bucket.RemainingFraction) * 100),
			ResetTime: bucket.ResetTime,
		}
		break
	}

	return usage
}

// accountStatus derives the normalized status from the credential record.
func accountStatus(acc models.ProxyAccount) string {
	if acc.Unavailable || strings.EqualFold(acc.Status, "disabled") {
		return models.StatusError
	}
	return models.StatusActive
}
