package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingJob struct {
	release chan struct{}
	started chan struct{}
	runs    atomic.Int32
	err     error
}

func newBlockingJob() *blockingJob {
	return &blockingJob{release: make(chan struct{}), started: make(chan struct{}, 8)}
}

func (j *blockingJob) Run(ctx context.Context) (*Result, error) {
	j.runs.Add(1)
	j.started <- struct{}{}
	<-j.release
	return &Result{RunID: "r"}, j.err
}

type countingReloader struct{ n atomic.Int32 }

func (r *countingReloader) Reload(context.Context) error {
	r.n.Add(1)
	return nil
}

func TestRunnerRejectsConcurrentTrigger(t *testing.T) {
	job := newBlockingJob()
	reloader := &countingReloader{}
	r := NewRunner(job, reloader, zap.NewNop())

	require.NoError(t, r.TryStart(context.Background()))
	<-job.started
	assert.True(t, r.Running())

	assert.ErrorIs(t, r.TryStart(context.Background()), ErrAlreadyRunning)
	_, err := r.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(job.release)
	r.Wait()

	assert.False(t, r.Running())
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Equal(t, int32(1), reloader.n.Load())
	require.NotNil(t, r.Last())
	assert.NoError(t, r.Last().Err)

	// Free again once the first job is done.
	require.NoError(t, r.TryStart(context.Background()))
	r.Wait()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestRunnerSkipsReloadOnFailure(t *testing.T) {
	job := newBlockingJob()
	job.err = errors.New("boom")
	close(job.release)
	reloader := &countingReloader{}
	r := NewRunner(job, reloader, zap.NewNop())

	_, err := r.RunNow(context.Background())
	assert.EqualError(t, err, "boom")
	assert.Zero(t, reloader.n.Load())
	assert.EqualError(t, r.Last().Err, "boom")
}

func TestRunnerSurvivesCanceledTrigger(t *testing.T) {
	job := newBlockingJob()
	close(job.release)
	r := NewRunner(job, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.TryStart(ctx))
	cancel()
	r.Wait()
	assert.NoError(t, r.Last().Err)
}
