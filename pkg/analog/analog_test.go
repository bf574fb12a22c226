package analog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedInput uint16

func (f fixedInput) Get() uint16 { return uint16(f) }

func TestCalibrate(t *testing.T) {
	tests := []struct {
		name   string
		raw    float32
		coeffs [3]float32
		want   float64
	}{
		{
			name:   "default coefficients at half scale",
			raw:    0.5,
			coeffs: DefaultCoeffs,
			want:   -97.35308 + 0.5*920.6867 + 0.25*-14.86687,
		},
		{
			name:   "zero input yields offset",
			raw:    0,
			coeffs: [3]float32{1.5, 2, 3},
			want:   1.5,
		},
		{
			name:   "full scale",
			raw:    1,
			coeffs: [3]float32{1, 2, 3},
			want:   6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calibrate(tt.raw, tt.coeffs)
			assert.InDelta(t, tt.want, float64(got), 1e-3)
		})
	}
}

func TestReader_Read(t *testing.T) {
	r := NewReader(fixedInput(0), fixedInput(0xFFFF), fixedInput(0x8000))

	v, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, float32(0), v)

	v, err = r.Read(1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)

	v, err = r.Read(2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, float64(v), 1e-4)

	_, err = r.Read(3)
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = r.Read(4)
	assert.Error(t, err)
}

func TestReader_Has(t *testing.T) {
	r := NewReader(fixedInput(1))
	assert.True(t, r.Has(0))
	assert.False(t, r.Has(1))
	assert.False(t, r.Has(-1))

	var nilReader *Reader
	assert.False(t, nilReader.Has(0))
}
