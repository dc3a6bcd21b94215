package netwatch

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/intercom/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProbe struct {
	up atomic.Bool
}

func (p *scriptedProbe) probe(context.Context) bool { return p.up.Load() }

func TestWatcher_NotifiesOnlyOnTransition(t *testing.T) {
	p := &scriptedProbe{}
	p.up.Store(true)
	w := New(p.probe)

	var events int
	unsubscribe := w.Subscribe(func() { events++ })

	w.Check(context.Background())
	assert.Equal(t, 0, events, "starting online is not a transition")

	p.up.Store(false)
	assert.False(t, w.Check(context.Background()))
	assert.False(t, w.Online())
	assert.Equal(t, 0, events)

	p.up.Store(true)
	assert.True(t, w.Check(context.Background()))
	assert.Equal(t, 1, events)

	w.Check(context.Background())
	assert.Equal(t, 1, events)

	unsubscribe()
	p.up.Store(false)
	w.Check(context.Background())
	p.up.Store(true)
	w.Check(context.Background())
	assert.Equal(t, 1, events)
}

func TestWatcher_StartProbesOnInterval(t *testing.T) {
	sched := coretest.NewScheduler()
	p := &scriptedProbe{}
	w := New(p.probe, WithScheduler(sched), WithInterval(2*time.Second))

	var events int
	w.Subscribe(func() { events++ })

	w.Start(context.Background())
	w.Start(context.Background())
	recurring := sched.PendingRecurring()
	require.Len(t, recurring, 1)
	assert.Equal(t, 2*time.Second, recurring[0].Delay)

	sched.Fire(recurring[0])
	assert.False(t, w.Online())

	p.up.Store(true)
	sched.Fire(recurring[0])
	assert.Equal(t, 1, events)

	w.Stop()
	assert.Empty(t, sched.Pending())
}

func TestWatcher_CancelledContextSkipsProbe(t *testing.T) {
	sched := coretest.NewScheduler()
	var probes atomic.Int32
	w := New(func(context.Context) bool { probes.Add(1); return true }, WithScheduler(sched))

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	sched.Fire(sched.PendingRecurring()[0])
	assert.Equal(t, int32(0), probes.Load())
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	probe := TCPProbe(addr, time.Second)
	assert.True(t, probe(context.Background()))

	require.NoError(t, ln.Close())
	assert.False(t, probe(context.Background()))
}
