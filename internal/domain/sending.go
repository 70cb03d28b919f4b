package domain

// Recipient is one deliverable address, derived per run from the user
// directory. Recipients are ephemeral; the engine never persists them.
type Recipient struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
}

// SendProgress holds the cumulative counters for one delivery run. The
// counters are monotonically non-decreasing and mutated only by the
// dispatcher that owns the run; totalSent+totalFailed never exceeds
// TotalRecipients.
type SendProgress struct {
	TotalSent       int `json:"total_sent"`
	TotalFailed     int `json:"total_failed"`
	TotalRecipients int `json:"total_recipients"`
}

// SuppressionType classifies why an address must not receive mail.
type SuppressionType string

const (
	SuppressionUnsubscribe SuppressionType = "unsubscribe"
	SuppressionBounce      SuppressionType = "bounce"
	SuppressionComplaint   SuppressionType = "complaint"
)

// SuppressionEntry is one address on a provider suppression list. The
// provider is the source of truth; the engine only reads and mutates it.
type SuppressionEntry struct {
	Address   string          `json:"address"`
	Type      SuppressionType `json:"type"`
	CreatedAt string          `json:"created_at"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
}
