package delivery

import (
	"math"
	"math/rand"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// Chunk partitions recipients into consecutive groups of at most size.
// Order is preserved; only the final chunk may be short. A size <= 0
// yields no chunks at all, never chunks of zero length.
func Chunk(recipients []domain.Recipient, size int) [][]domain.Recipient {
	if size <= 0 {
		return nil
	}
	var chunks [][]domain.Recipient
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		chunks = append(chunks, recipients[start:end])
	}
	return chunks
}

// Split shuffles recipients and divides them into two groups, the first
// receiving round(n * percentA / 100) members. Every recipient lands in
// exactly one group. The input slice is not modified.
func Split(recipients []domain.Recipient, percentA int) (groupA, groupB []domain.Recipient) {
	shuffled := make([]domain.Recipient, len(recipients))
	copy(shuffled, recipients)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(math.Round(float64(len(shuffled)) * float64(percentA) / 100))
	if cut < 0 {
		cut = 0
	}
	if cut > len(shuffled) {
		cut = len(shuffled)
	}
	return shuffled[:cut], shuffled[cut:]
}
