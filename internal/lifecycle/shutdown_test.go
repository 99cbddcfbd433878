package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_RunsAllHooks(t *testing.T) {
	s := NewShutdown(nil)

	var ran atomic.Int32
	closeErr := errors.New("close failed")

	s.Register("postgres", func(context.Context) error { ran.Add(1); return nil })
	s.Register("redis", func(context.Context) error { ran.Add(1); return closeErr })
	s.Register("queue", func(context.Context) error { ran.Add(1); return nil })
	s.Register("nil", nil)

	err := s.Execute(context.Background())
	assert.Equal(t, int32(3), ran.Load())
	assert.ErrorIs(t, err, closeErr)
	assert.Contains(t, err.Error(), "redis")
}

func TestShutdown_NoHooks(t *testing.T) {
	assert.NoError(t, NewShutdown(nil).Execute(context.Background()))
}
