package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeUnitDivisor(t *testing.T) {
	tests := []struct {
		unit    TimeUnit
		divisor float64
	}{
		{UnitDays, 1},
		{UnitWeeks, 7},
		{UnitMonths, 365.25 / 12},
		{UnitQuarters, 365.25 / 4},
		{UnitYears, 365.25},
	}

	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			d, err := tt.unit.Divisor()
			require.NoError(t, err)
			assert.Equal(t, tt.divisor, d)
		})
	}

	_, err := TimeUnit("fortnights").Divisor()
	assert.Error(t, err)
}

func TestTransformValidate(t *testing.T) {
	tests := []struct {
		name      string
		transform Transform
		wantErr   bool
	}{
		{"reference", Transform{Kind: TransformReference}, false},
		{"ever treated", Transform{Kind: TransformEverTreated}, false},
		{"current former", Transform{Kind: TransformCurrentFormer}, false},
		{"lag with days", Transform{Kind: TransformLag, Days: 30}, false},
		{"lag without days", Transform{Kind: TransformLag}, true},
		{"washout negative days", Transform{Kind: TransformWashout, Days: -1}, true},
		{"cumulative with unit", Transform{Kind: TransformCumulativeDuration, Unit: UnitYears}, false},
		{"cumulative without unit", Transform{Kind: TransformCumulativeDuration}, true},
		{"unknown kind", Transform{Kind: "bogus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.transform.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
