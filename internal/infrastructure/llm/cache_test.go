package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls int
	err   error
}

func (c *countingGenerator) Generate(_ context.Context, _, input string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "echo:" + input, nil
}

func TestCachedGeneratorMemoises(t *testing.T) {
	t.Parallel()

	next := &countingGenerator{}
	cached, err := NewCachedGenerator(next, 2)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		out, err := cached.Generate(ctx, "sys", "a")
		require.NoError(t, err)
		assert.Equal(t, "echo:a", out)
	}
	assert.Equal(t, 1, next.calls)

	_, _ = cached.Generate(ctx, "other", "a")
	assert.Equal(t, 2, next.calls, "system prompt is part of the key")
	assert.Equal(t, 2, cached.Len())
}

func TestCachedGeneratorDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	next := &countingGenerator{err: errors.New("down")}
	cached, err := NewCachedGenerator(next, 4)
	require.NoError(t, err)

	_, err = cached.Generate(context.Background(), "s", "i")
	assert.Error(t, err)
	_, err = cached.Generate(context.Background(), "s", "i")
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, cached.Len())
}

func TestCachedGeneratorRejectsBadSize(t *testing.T) {
	t.Parallel()

	_, err := NewCachedGenerator(&countingGenerator{}, 0)
	assert.Error(t, err)
}
