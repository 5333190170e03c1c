package lots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiryStatus(t *testing.T) {
	asOf := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		days int
		want ExpiryLevel
	}{
		{-1, ExpiryExpired},
		{0, ExpiryCritical},
		{2, ExpiryCritical},
		{3, ExpiryHigh},
		{5, ExpiryHigh},
		{6, ExpiryMedium},
		{7, ExpiryMedium},
		{8, ExpiryNone},
		{10, ExpiryNone},
	}
	for _, tt := range tests {
		exp := asOf.AddDate(0, 0, tt.days)
		lot := Lot{ExpDate: &exp}
		assert.Equal(t, tt.want, ExpiryStatus(lot, asOf, DefaultThresholdDays), "days=%d", tt.days)
	}
}

func TestExpiryStatus_PartialDayRoundsUp(t *testing.T) {
	asOf := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	exp := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC) // 1.75 days away
	assert.Equal(t, 2, DaysUntil(exp, asOf))
	assert.Equal(t, ExpiryCritical, ExpiryStatus(Lot{ExpDate: &exp}, asOf, 7))
}

func TestExpiryStatus_NoExpiryDate(t *testing.T) {
	assert.Equal(t, ExpiryNone, ExpiryStatus(Lot{}, time.Now(), 7))
}

func TestExpiryStatus_CustomThreshold(t *testing.T) {
	asOf := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	exp := asOf.AddDate(0, 0, 12)
	assert.Equal(t, ExpiryNone, ExpiryStatus(Lot{ExpDate: &exp}, asOf, 7))
	assert.Equal(t, ExpiryMedium, ExpiryStatus(Lot{ExpDate: &exp}, asOf, 14))
}

func TestLevelRank(t *testing.T) {
	assert.Less(t, ExpiryExpired.Rank(), ExpiryCritical.Rank())
	assert.Less(t, ExpiryCritical.Rank(), ExpiryHigh.Rank())
	assert.Less(t, ExpiryHigh.Rank(), ExpiryMedium.Rank())
	assert.Less(t, ExpiryMedium.Rank(), ExpiryNone.Rank())
}
