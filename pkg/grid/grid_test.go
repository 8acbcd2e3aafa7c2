package grid

import (
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownValues(t *testing.T) {
	v, err := Encode(Cell{ID: 1, X: 5, Y: 4, Relev: 1, Score: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(6755468165775361), v)

	v, err = Encode(Cell{ID: 532, X: 12, Y: 17, Relev: 0.6, Score: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(4222416721019412), v)
}

func TestEncodeFitsIn53Bits(t *testing.T) {
	v, err := Encode(Cell{ID: MaxID - 1, X: MaxCoord - 1, Y: MaxCoord - 1, Relev: 1, Score: 7})
	require.NoError(t, err)
	assert.Less(t, v, uint64(1)<<53)
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	cases := map[string]Cell{
		"id":    {ID: MaxID, Relev: 1},
		"x":     {X: MaxCoord, Relev: 1},
		"y":     {Y: MaxCoord, Relev: 1},
		"relev": {Relev: 0.5},
		"zero":  {Relev: 0},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrOutOfRange))
		})
	}
}

func TestScoreIsClamped(t *testing.T) {
	v, err := Encode(Cell{ID: 3, X: 1, Y: 2, Relev: 0.8, Score: 12})
	require.NoError(t, err)
	assert.Equal(t, 7, Decode(v).Score)

	v, err = Encode(Cell{ID: 3, X: 1, Y: 2, Relev: 0.8, Score: -4})
	require.NoError(t, err)
	assert.Equal(t, 0, Decode(v).Score)
}

func TestDecodeRestoresFields(t *testing.T) {
	for _, relev := range []float64{0.4, 0.6, 0.8, 1} {
		c := Cell{ID: 1048575, X: 16383, Y: 9000, Relev: relev, Score: 5}
		assert.Equal(t, c, Decode(MustEncode(c)))
	}
}

func TestRoundRelev(t *testing.T) {
	assert.Equal(t, 0.4, RoundRelev(0.1))
	assert.Equal(t, 0.6, RoundRelev(0.6))
	assert.Equal(t, 0.8, RoundRelev(0.82))
	assert.Equal(t, 1.0, RoundRelev(1))
}
