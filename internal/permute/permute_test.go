package permute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContinuous(t *testing.T) {
	assert.Equal(t, []uint32{1}, Continuous(1))
	assert.Equal(t, []uint32{7, 3, 6, 1, 2, 4}, Continuous(3))
	assert.Len(t, Continuous(5), 15)
	assert.Empty(t, Continuous(0))
}

func TestAll(t *testing.T) {
	assert.Equal(t, []uint32{7, 3, 5, 6, 1, 2, 4}, All(3))
	assert.Len(t, All(8), 255)
	assert.Equal(t, uint32(255), All(8)[0])
}

func TestCachedSliceIsStable(t *testing.T) {
	a := Continuous(4)
	b := Continuous(4)
	assert.Equal(t, &a[0], &b[0])
}

func BenchmarkAll(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = all(8)
	}
}
