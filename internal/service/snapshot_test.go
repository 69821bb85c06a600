package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSaver struct {
	calls atomic.Int32
	err   error
}

func (s *countingSaver) SaveAll(context.Context) error {
	s.calls.Add(1)
	return s.err
}

func TestSnapshotter_PeriodicAndFinalSave(t *testing.T) {
	saver := &countingSaver{}
	s := NewSnapshotter(saver, 5*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return saver.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	after := saver.calls.Load()

	require.NoError(t, s.Stop(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, saver.calls.Load())
}

func TestSnapshotter_StopWithoutStartStillSaves(t *testing.T) {
	saver := &countingSaver{}
	s := NewSnapshotter(saver, time.Hour, zap.NewNop())

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), saver.calls.Load())
}

func TestSnapshotter_FailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	saver := &countingSaver{err: errors.New("connection refused")}
	s := NewSnapshotter(saver, 5*time.Millisecond, zap.New(core))

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return logs.FilterMessage("failed to save products").Len() > 0
	}, 2*time.Second, 5*time.Millisecond)

	err := s.Stop(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1, logs.FilterMessage("failed to save products on shutdown").Len())
}

func TestSnapshotter_SavesServiceState(t *testing.T) {
	f := newFixture(t, EconomyConfig{}, stone())
	_, err := f.svc.Buy(context.Background(), actor, "stone", 2)
	require.NoError(t, err)

	s := NewSnapshotter(f.svc, time.Hour, zap.NewNop())
	s.Start(context.Background())
	require.NoError(t, s.Stop(context.Background()))

	saved, _ := f.products.get("stone")
	assert.Equal(t, int64(12), saved.Demand)
}
