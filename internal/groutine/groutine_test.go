package groutine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoPropagatesName(t *testing.T) {
	names := make(chan string, 1)
	Go(nil, "acquisition", func(ctx context.Context) {
		names <- GetName(ctx)
	})
	assert.Equal(t, "acquisition", <-names)
}

func TestGoResult(t *testing.T) {
	boom := errors.New("boom")
	res := <-GoResult(context.Background(), "decode", func(ctx context.Context) (int, error) {
		assert.Equal(t, "decode", GetName(ctx))
		return 42, boom
	})
	assert.Equal(t, 42, res.Value)
	assert.ErrorIs(t, res.Err, boom)
}

func TestGetNameWithoutLabel(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Empty(t, GetName(nil))
}
