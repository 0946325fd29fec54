// Package aggregator implements the usage aggregation pipeline: account
// classification, concurrent per-provider usage fetches, and normalization
// of the three provider response shapes into one model.
package aggregator

import (
	"strings"

	"github.com/usagedeck/usagedeck/internal/models"
)

// Buckets holds the classified accounts, one slice per provider family.
// The slices are disjoint; their union is the input minus disabled,
// hidden, and unknown-provider records.
type Buckets struct {
	Claude []models.ProxyAccount
	Codex  []models.ProxyAccount
	Gemini []models.ProxyAccount
}

// Total returns the number of classified accounts across all buckets.
func (b *Buckets) Total() int {
	return len(b.Claude) + len(b.Codex) + len(b.Gemini)
}

// Classify partitions credential records into provider buckets. Disabled
// records and records whose identity appears in hidden are excluded.
// Unknown providers are dropped without error; this is filtering, not
// validation.
func Classify(accounts []models.ProxyAccount, hidden []string) Buckets {
	hiddenSet := make(map[string]struct{}, len(hidden))
	for _, h := range hidden {
		hiddenSet[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	var buckets Buckets
	for _, acc := range accounts {
		if acc.Disabled {
			continue
		}
		if _, ok := hiddenSet[strings.ToLower(acc.Identity())]; ok {
			continue
		}

		switch acc.Kind() {
		case models.ProviderClaude:
			buckets.Claude = append(buckets.Claude, acc)
		case models.ProviderCodex:
			buckets.Codex = append(buckets.Codex, acc)
		case models.ProviderGemini:
			buckets.Gemini = append(buckets.Gemini, acc)
		}
	}

	return buckets
}
