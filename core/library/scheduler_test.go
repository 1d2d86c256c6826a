package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolerp/core/library"
)

func TestScheduler(t *testing.T) {
	f := newFixture(t, 1, fiveLoans()...)
	library.NowFunc = func() time.Time { return now }
	defer func() { library.NowFunc = time.Now }()

	ctx, cancel := context.WithCancel(context.Background())
	s := library.NewScheduler(f.svc, 10*time.Millisecond)
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return len(f.mailSvc.SentMessages()) >= 6
	}, 2*time.Second, 5*time.Millisecond, "first run on start, then on ticks")

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	sent := len(f.mailSvc.SentMessages())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, sent, len(f.mailSvc.SentMessages()), "no run after stop")
}
