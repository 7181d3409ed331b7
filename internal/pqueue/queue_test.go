// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrder(t *testing.T) {
	q := New[string]()
	q.Push("low", 1)
	q.Push("high", 0)
	q.Push("low2", 1)

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "high", v)

	v, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "low", v, "FIFO within the same priority level")

	v, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "low2", v)

	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	ctx := context.Background()

	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop(ctx)
		if ok {
			done <- v
		} else {
			done <- -1
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42, 0)

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned")
	}
}

func TestPopRespectsContextCancellation(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}
