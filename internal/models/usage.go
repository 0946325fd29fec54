package models

import "time"

// Account status values surfaced in normalized usage records.
const (
	StatusActive = "active"
	StatusError  = "error"
)

// DefaultClaudePlan is reported when the credential record carries no plan.
const DefaultClaudePlan = "max"

// DefaultCodexPlan is reported when the token claims carry no plan.
const DefaultCodexPlan = "unknown"

// ClaudeWindow is one named utilization window of a Claude-family account.
// Every field is always present in the output; absent upstream data becomes
// the zero utilization with a null reset time.
type ClaudeWindow struct {
	Utilization float64    `json:"utilization"`
	ResetsAt    *time.Time `json:"resets_at"`
}

// DefaultClaudeWindow returns a fresh zero window. Callers get a new value
// each time so a mutated window can never leak across accounts.
func DefaultClaudeWindow() ClaudeWindow {
	return ClaudeWindow{}
}

// ClaudeAccountUsage is the normalized usage record for one Claude-family
// account.
type ClaudeAccountUsage struct {
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Status         string       `json:"status"`
	StatusMessage  string       `json:"status_message,omitempty"`
	PlanType       string       `json:"plan_type"`
	FiveHour       ClaudeWindow `json:"five_hour"`
	SevenDay       ClaudeWindow `json:"seven_day"`
	SevenDaySonnet ClaudeWindow `json:"seven_day_sonnet"`
}

// Window returns the named utilization window.
func (u *ClaudeAccountUsage) Window(m Metric) ClaudeWindow {
	switch m {
	case MetricFiveHour:
		return u.FiveHour
	case MetricSevenDay:
		return u.SevenDay
	case MetricSevenDaySonnet:
		return u.SevenDaySonnet
	default:
		return DefaultClaudeWindow()
	}
}

// CodexWindow is one rate-limit window of a Codex-family account.
type CodexWindow struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int64   `json:"limit_window_seconds"`
	ResetAfterSeconds  int64   `json:"reset_after_seconds"`
	ResetAt            int64   `json:"reset_at"`
}

// DefaultCodexWindow returns a fresh zero window.
func DefaultCodexWindow() CodexWindow {
	return CodexWindow{}
}

// CodexRateLimit pairs a primary window with an optional secondary window.
// Secondary stays nil when the plan has no secondary window; it is not
// defaulted, so consumers can tell "no window" from "zero usage".
type CodexRateLimit struct {
	Primary   CodexWindow  `json:"primary_window"`
	Secondary *CodexWindow `json:"secondary_window"`
}

// CodexAccountUsage is the normalized usage record for one Codex-family
// account.
type CodexAccountUsage struct {
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Status        string         `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	PlanType      string         `json:"plan_type"`
	RateLimit     CodexRateLimit `json:"rate_limit"`
	CodeReview    CodexRateLimit `json:"code_review_rate_limit"`
}

// GeminiQuota is the representative quota bucket of a Gemini-family account.
type GeminiQuota struct {
	ModelID   string  `json:"model_id"`
	Used      float64 `json:"used"`
	ResetTime string  `json:"reset_time,omitempty"`
}

// GeminiAccountUsage is the normalized usage record for one Gemini-family
// account. Quota is nil when the upstream call never succeeded, which is
// distinct from a present bucket with zero usage.
type GeminiAccountUsage struct {
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Status        string       `json:"status"`
	StatusMessage string       `json:"status_message,omitempty"`
	Quota         *GeminiQuota `json:"quota,omitempty"`
}

// UsageReport is the full output of one aggregation cycle.
type UsageReport struct {
	Accounts    []ClaudeAccountUsage `json:"accounts"`
	Codex       []CodexAccountUsage  `json:"codex"`
	Gemini      []GeminiAccountUsage `json:"gemini"`
	CollectedAt time.Time            `json:"collected_at"`
}
