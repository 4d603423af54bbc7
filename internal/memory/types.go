package memory

import "time"

// EmbeddingDim is the fixed dimension of the hashed bag-of-words vectors.
const EmbeddingDim = 100

// Memory is one persisted, taggable, expiring fact scoped to a guild.
type Memory struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	Tags            []string   `json:"tags"`
	Importance      int        `json:"importance"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	AccessCount     int        `json:"access_count"`
	LastAccessed    *time.Time `json:"last_accessed,omitempty"`
	Embedding       []float64  `json:"embedding"`
	SourceMessageID string     `json:"source_message_id,omitempty"`
}

// Expired reports whether the memory is past its expiry at the given time.
func (m *Memory) Expired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// Scored pairs a memory with its search relevance in [0, 1].
type Scored struct {
	Memory Memory
	Score  float64
}

// Stats summarizes one guild's memory file.
type Stats struct {
	Total             int            `json:"total"`
	Active            int            `json:"active"`
	Expired           int            `json:"expired"`
	AverageImportance float64        `json:"average_importance"`
	TopTags           map[string]int `json:"top_tags"`
}

// Update actions.
const (
	ActionExtend             = "extend"
	ActionDelete             = "delete"
	ActionIncreaseImportance = "increase_importance"
)
