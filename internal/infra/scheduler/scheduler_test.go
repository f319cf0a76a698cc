//go:build !integration

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_RunsJobUntilStopped(t *testing.T) {
	var runs atomic.Int32
	job := JobFunc{JobName: "funnel_gauges", Fn: func(ctx context.Context) (int, error) {
		if runs.Add(1)%2 == 0 {
			return 0, errors.New("transient")
		}
		return 1, nil
	}}
	logger := zerolog.Nop()
	s := NewScheduler(5*time.Millisecond, job, &logger)

	s.Start(context.Background())
	s.Start(context.Background()) // second start is a no-op
	time.Sleep(40 * time.Millisecond)
	s.Stop()
	s.Stop()

	got := runs.Load()
	if got < 3 {
		t.Fatalf("expected the job to keep running after errors, got %d runs", got)
	}
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != got {
		t.Error("job ran after Stop")
	}
}
