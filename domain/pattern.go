package domain

import "time"

const PatternLabelWinner = "winner"

// PatternEntry is an immutable record in the similarity index.
type PatternEntry struct {
	ID           string         `json:"id"`
	Vector       []float64      `json:"vector"`
	OutcomeLabel string         `json:"outcome_label"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AccountID reads the owning account from the entry metadata.
func (p PatternEntry) AccountID() string {
	if p.Metadata == nil {
		return ""
	}
	s, _ := p.Metadata["account_id"].(string)
	return s
}

type PatternMatch struct {
	Entry      PatternEntry `json:"entry"`
	Similarity float64      `json:"similarity"`
}
