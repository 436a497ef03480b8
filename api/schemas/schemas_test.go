package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegionEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Region{}.Empty())
	assert.True(t, Region{X: 5, Y: 5, Width: 0, Height: 10}.Empty())
	assert.True(t, Region{Width: 10, Height: -1}.Empty())
	assert.False(t, Region{Width: 1, Height: 1}.Empty())
}

func TestRegionContains(t *testing.T) {
	t.Parallel()

	r := Region{X: 10, Y: 20, Width: 30, Height: 40}

	assert.True(t, r.Contains(10, 20), "top-left corner is inside")
	assert.True(t, r.Contains(39, 59), "bottom-right interior point is inside")
	assert.False(t, r.Contains(40, 20), "right edge is exclusive")
	assert.False(t, r.Contains(10, 60), "bottom edge is exclusive")
	assert.False(t, r.Contains(9, 20))
}
