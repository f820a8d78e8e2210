package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"lms/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	olderThan time.Time
	batch     int
	dryRun    bool
	n         int
	err       error
}

func (f *fakeExpirer) ExpireStaleUploads(_ context.Context, olderThan time.Time, batch int, dryRun bool) (int, error) {
	f.olderThan, f.batch, f.dryRun = olderThan, batch, dryRun
	return f.n, f.err
}

func TestSweep(t *testing.T) {
	cfg := &config.Config{ReaperUploadTTLMin: 60, ReaperBatchSize: 25, ReaperDryRun: true}
	exp := &fakeExpirer{n: 3}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := Sweep(context.Background(), zerolog.Nop(), exp, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, now.Add(-time.Hour), exp.olderThan)
	assert.Equal(t, 25, exp.batch)
	assert.True(t, exp.dryRun)

	exp.err = errors.New("db down")
	_, err = Sweep(context.Background(), zerolog.Nop(), exp, cfg, now)
	assert.Error(t, err)
}

func TestRun_RejectsBadSchedule(t *testing.T) {
	cfg := &config.Config{ReaperSchedule: "every tuesday"}
	err := Run(context.Background(), zerolog.Nop(), &fakeExpirer{}, cfg)
	assert.ErrorContains(t, err, "REAPER_SCHEDULE")
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := &config.Config{ReaperSchedule: "*/15 * * * *"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, zerolog.Nop(), &fakeExpirer{}, cfg) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
