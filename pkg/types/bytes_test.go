package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes_KB(t *testing.T) {
	assert.InDelta(t, 1.0, Bytes(1024).KB(), 1e-12)
	assert.InDelta(t, 1.5, Bytes(1536).KB(), 1e-12)
	assert.InDelta(t, 0, Bytes(0).KB(), 1e-12)
}
