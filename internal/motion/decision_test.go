package motion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMoving(t *testing.T) {
	t.Parallel()

	cases := []struct {
		percent   float64
		threshold int
		want      bool
	}{
		{percent: 0, threshold: 0, want: false},
		{percent: 0.01, threshold: 0, want: true},
		{percent: 25, threshold: 25, want: false},
		{percent: 25.0001, threshold: 25, want: true},
		{percent: 24.9, threshold: 25, want: false},
		{percent: 100, threshold: 100, want: false},
		{percent: 100, threshold: 99, want: true},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Moving(tc.percent, tc.threshold), "%v > %d", tc.percent, tc.threshold)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeContours, m)

	m, err = ParseMode(" Threshold ")
	require.NoError(t, err)
	require.Equal(t, ModeThreshold, m)

	_, err = ParseMode("optical-flow")
	require.ErrorIs(t, err, ErrUnknownMode)
}
