package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinor(t *testing.T) {
	assert.Equal(t, int64(1050), ToMinor(10.50, 2))
	assert.Equal(t, int64(0), ToMinor(0, 2))
	assert.Equal(t, int64(1), ToMinor(0.01, 2))
	assert.Equal(t, int64(-1050), ToMinor(-10.50, 2))

	// Halves round away from zero.
	assert.Equal(t, int64(101), ToMinor(1.005, 2))
	assert.Equal(t, int64(-101), ToMinor(-1.005, 2))

	// Sub-minor fractions round to the nearest cent.
	assert.Equal(t, int64(1234), ToMinor(12.336, 2))
	assert.Equal(t, int64(1233), ToMinor(12.334, 2))
}

func TestFromMinor(t *testing.T) {
	assert.Equal(t, "10.50", FromMinor(1050, 2))
	assert.Equal(t, "0.00", FromMinor(0, 2))
	assert.Equal(t, "-3.07", FromMinor(-307, 2))
	assert.Equal(t, "0.01", FromMinor(1, 2))
}

func TestRoundTrip(t *testing.T) {
	// Amounts with at most two decimal digits survive the round trip intact.
	cases := []struct {
		amount float64
		want   string
	}{
		{0, "0.00"},
		{1.23, "1.23"},
		{99999.99, "99999.99"},
		{-42.01, "-42.01"},
		{0.10, "0.10"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FromMinor(ToMinor(tc.amount, 2), 2))
	}
}

func TestMulToMinor(t *testing.T) {
	// 0.0005 of a 10 x 150.00 notional = 0.75.
	assert.Equal(t, int64(75), MulToMinor(150.00, 10, 0.0005, 2))
	// Tiny notionals still round away from zero on the half.
	assert.Equal(t, int64(1), MulToMinor(10.00, 1, 0.0005, 2))
}

func TestScaleMinor(t *testing.T) {
	assert.Equal(t, int64(500), ScaleMinor(100, 5))
	assert.Equal(t, int64(50), ScaleMinor(100, 0.5))
	assert.Equal(t, int64(-200), ScaleMinor(-100, 2))
	// 33 cents * 0.333 rounds to 11.
	assert.Equal(t, int64(11), ScaleMinor(33, 0.333))
}
