package consolidation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storeflow/internal/core/types"
)

func TestClassify(t *testing.T) {
	q := types.NewQuantity
	tests := []struct {
		name      string
		ordered   types.Quantity
		available types.Quantity
		need      types.Quantity
		status    Status
	}{
		{"covered", q(110), q(150), 0, StatusSufficient},
		{"exactly covered", q(110), q(110), 0, StatusSufficient},
		{"partly covered", q(110), q(60), q(50), StatusPartial},
		{"nothing on hand", q(110), 0, q(110), StatusNeedProduction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			need, status := Classify(tt.ordered, tt.available)
			assert.Equal(t, tt.need, need)
			assert.Equal(t, tt.status, status)
		})
	}
}
