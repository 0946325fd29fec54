package models

import "strings"

// ProviderKind identifies one upstream usage/quota API family.
type ProviderKind string

const (
	ProviderClaude ProviderKind = "claude"
	ProviderCodex  ProviderKind = "codex"
	ProviderGemini ProviderKind = "gemini-cli"
	ProviderOther  ProviderKind = "other"
)

// ProxyAccount is one stored credential record as reported by the management
// proxy. The record is owned by the proxy; this service only reads it.
type ProxyAccount struct {
	AuthIndex     string `json:"auth-index"`
	Provider      string `json:"provider"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Label         string `json:"label"`
	Disabled      bool   `json:"disabled"`
	Unavailable   bool   `json:"unavailable"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	PlanType      string `json:"plan_type"`
}

// Identity returns the best available identifier for the account:
// email first, then name, then label.
func (a *ProxyAccount) Identity() string {
	if a.Email != "" {
		return a.Email
	}
	if a.Name != "" {
		return a.Name
	}
	return a.Label
}

// Kind classifies the account into a provider family. The provider field
// wins; type is the fallback for older proxy versions that only set type.
func (a *ProxyAccount) Kind() ProviderKind {
	key := strings.ToLower(strings.TrimSpace(a.Provider))
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(a.Type))
	}

	switch key {
	case "claude", "anthropic":
		return ProviderClaude
	case "codex", "openai":
		return ProviderCodex
	case "gemini-cli", "gemini":
		return ProviderGemini
	default:
		return ProviderOther
	}
}
