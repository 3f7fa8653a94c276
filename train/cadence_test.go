package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrossed(t *testing.T) {
	// Step size dividing the frequency: fires exactly on multiples.
	assert.False(t, Crossed(0, 50, 100))
	assert.True(t, Crossed(50, 100, 100))
	assert.False(t, Crossed(100, 150, 100))
	assert.True(t, Crossed(150, 200, 100))
	assert.False(t, Crossed(200, 250, 100))

	// Step size not dividing the frequency: fires once per crossed multiple,
	// at the first counter value past it.
	assert.False(t, Crossed(0, 3, 10))
	assert.False(t, Crossed(3, 6, 10))
	assert.False(t, Crossed(6, 9, 10))
	assert.True(t, Crossed(9, 12, 10))
	assert.False(t, Crossed(12, 15, 10))
	assert.True(t, Crossed(15, 21, 10)) // Large step still fires.

	// Degenerate arguments never fire.
	assert.False(t, Crossed(100, 100, 100))
	assert.False(t, Crossed(200, 100, 100))
	assert.False(t, Crossed(0, 100, 0))
	assert.False(t, Crossed(0, 100, -5))
}

func TestLastMultiple(t *testing.T) {
	assert.Equal(t, 100, LastMultiple(100, 100))
	assert.Equal(t, 100, LastMultiple(149, 100))
	assert.Equal(t, 0, LastMultiple(99, 100))
	assert.Equal(t, 12, LastMultiple(12, 0))
}
