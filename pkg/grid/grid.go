// Package grid packs a grid cell reference into a single integer that fits in
// the 53-bit safe integer range shared with the index files.
//
// Layout, least significant bit first:
//
//	bits  0-19  feature id
//	bits 20-33  tile x
//	bits 34-47  tile y
//	bits 48-50  score (0-7)
//	bits 51-52  relevance class (0.4, 0.6, 0.8, 1.0)
package grid

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

const (
	MaxID    = 1 << 20
	MaxCoord = 1 << 14
	MaxScore = 7

	xShift     = 20
	yShift     = 34
	scoreShift = 48
	relevShift = 51
)

var relevClasses = [4]float64{0.4, 0.6, 0.8, 1.0}

// Cell is the decoded form of a grid integer.
type Cell struct {
	ID    uint32  `json:"id"`
	X     uint32  `json:"x"`
	Y     uint32  `json:"y"`
	Relev float64 `json:"relev"`
	Score int     `json:"score"`
}

// Encode packs c. The score is clamped into 0-7; every other field must
// already be in range.
func Encode(c Cell) (uint64, error) {
	if c.ID >= MaxID {
		return 0, fmt.Errorf("%w: id %d exceeds %d", apperrors.ErrOutOfRange, c.ID, MaxID-1)
	}
	if c.X >= MaxCoord {
		return 0, fmt.Errorf("%w: x %d exceeds %d", apperrors.ErrOutOfRange, c.X, MaxCoord-1)
	}
	if c.Y >= MaxCoord {
		return 0, fmt.Errorf("%w: y %d exceeds %d", apperrors.ErrOutOfRange, c.Y, MaxCoord-1)
	}
	class, ok := relevClass(c.Relev)
	if !ok {
		return 0, fmt.Errorf("%w: relev %v is not one of 0.4, 0.6, 0.8, 1", apperrors.ErrOutOfRange, c.Relev)
	}
	score := c.Score
	if score < 0 {
		score = 0
	} else if score > MaxScore {
		score = MaxScore
	}
	return uint64(class)<<relevShift |
		uint64(score)<<scoreShift |
		uint64(c.Y)<<yShift |
		uint64(c.X)<<xShift |
		uint64(c.ID), nil
}

// MustEncode is Encode for values that are known to be valid.
func MustEncode(c Cell) uint64 {
	v, err := Encode(c)
	if err != nil {
		panic(err)
	}
	return v
}

// Decode unpacks a grid integer.
func Decode(v uint64) Cell {
	return Cell{
		ID:    uint32(v & (MaxID - 1)),
		X:     uint32(v>>xShift) & (MaxCoord - 1),
		Y:     uint32(v>>yShift) & (MaxCoord - 1),
		Score: int(v>>scoreShift) & MaxScore,
		Relev: relevClasses[(v>>relevShift)&3],
	}
}

// RoundRelev snaps an arbitrary relevance onto the closest encodable class.
// Values below 0.4 round up to 0.4.
func RoundRelev(relev float64) float64 {
	best := relevClasses[0]
	for _, r := range relevClasses {
		if relev >= r-0.1 {
			best = r
		}
	}
	return best
}

func relevClass(relev float64) (int, bool) {
	for i, r := range relevClasses {
		if relev > r-1e-9 && relev < r+1e-9 {
			return i, true
		}
	}
	return 0, false
}
