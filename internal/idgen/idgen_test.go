package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence(t *testing.T) {
	next := Sequence("ctx")
	assert.Equal(t, "ctx-1", next())
	assert.Equal(t, "ctx-2", next())
	assert.NotEqual(t, New(), New())
}
