package knowledge

import (
	"fmt"

	"github.com/cloo-solutions/helpdesk/internal/domain"
)

// DotProduct returns the inner product of a and b. For unit vectors this is
// their cosine similarity.
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", domain.ErrVectorSizeMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}
