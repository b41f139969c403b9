package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanPool_BlocksAtCapacity(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(ctx)
	assert.False(t, ok)

	release()
	release2, ok := p.Acquire(context.Background())
	require.True(t, ok)
	release2()
}
