// ABOUTME: Tests for the connectivity watcher and sync triggers
// ABOUTME: Covers offline skips, busy drops, reconnect syncs, stop on Wait, probing, and the ticker

package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

type countingSyncer struct {
	calls atomic.Int32
	res   syncer.Result
}

func (c *countingSyncer) SyncAll(ctx context.Context) (syncer.Result, error) {
	c.calls.Add(1)
	return c.res, nil
}

func TestTrigger_SkipsWhileOffline(t *testing.T) {
	eng := &countingSyncer{res: syncer.Result{Outcome: syncer.OutcomeNothingToSync}}
	conn := NewConnectivity("", 0, nil, nil)
	conn.SetOnline(false)

	_, ran := NewTrigger(eng, conn, nil).Fire(context.Background(), "test")
	assert.False(t, ran)
	assert.Zero(t, eng.calls.Load())
}

func TestTrigger_RunsWhenOnline(t *testing.T) {
	eng := &countingSyncer{res: syncer.Result{Outcome: syncer.OutcomeCompleted, Successes: 2}}

	res, ran := NewTrigger(eng, nil, nil).Fire(context.Background(), "test")
	assert.True(t, ran)
	assert.Equal(t, 2, res.Successes)
	assert.Equal(t, int32(1), eng.calls.Load())
}

func TestTrigger_DroppedWhileBusy(t *testing.T) {
	st := store.NewMockStore()
	_, err := st.Put(context.Background(), &store.Record{ID: "a", Content: "x"})
	require.NoError(t, err)

	release := make(chan struct{})
	var pushes atomic.Int32
	eng := syncer.NewEngine(st, syncer.RemoteFunc(func(ctx context.Context, rec *store.Record) error {
		pushes.Add(1)
		<-release
		return nil
	}), nil)
	defer eng.Close()

	done := make(chan syncer.Result)
	go func() {
		res, _ := eng.SyncAll(context.Background())
		done <- res
	}()
	require.Eventually(t, func() bool {
		_, live := eng.Session()
		return live
	}, time.Second, time.Millisecond)

	res, ran := NewTrigger(eng, nil, nil).Fire(context.Background(), "test")
	assert.False(t, ran)
	assert.Equal(t, syncer.OutcomeAlreadySyncing, res.Outcome)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Successes)
	assert.Equal(t, int32(1), pushes.Load())

	// The dropped trigger was not queued behind the live run
	_, live := eng.Session()
	assert.False(t, live)
}

func TestConnectivity_ListenersHearTransitionsOnly(t *testing.T) {
	conn := NewConnectivity("", 0, nil, nil)
	var events []bool
	conn.OnChange(func(online bool) { events = append(events, online) })

	conn.SetOnline(true) // already online
	conn.SetOnline(false)
	conn.SetOnline(false)
	conn.SetOnline(true)

	assert.Equal(t, []bool{false, true}, events)
	assert.True(t, conn.Online())
}

func TestTrigger_SyncsWhenConnectivityReturns(t *testing.T) {
	eng := &countingSyncer{res: syncer.Result{Outcome: syncer.OutcomeCompleted}}
	conn := NewConnectivity("", 0, nil, nil)
	trig := NewTrigger(eng, conn, nil)
	trig.WatchConnectivity(context.Background(), conn)

	conn.SetOnline(false)
	assert.Zero(t, eng.calls.Load())

	conn.SetOnline(true)
	require.Eventually(t, func() bool { return eng.calls.Load() == 1 }, time.Second, time.Millisecond)
	trig.Wait()
	assert.Equal(t, int32(1), eng.calls.Load())
}

func TestTrigger_NoSyncsAfterWait(t *testing.T) {
	eng := &countingSyncer{res: syncer.Result{Outcome: syncer.OutcomeCompleted}}
	conn := NewConnectivity("", 0, nil, nil)
	trig := NewTrigger(eng, conn, nil)
	trig.WatchConnectivity(context.Background(), conn)

	// Transitions racing Wait must neither panic nor leak a run past it
	flapped := make(chan struct{})
	go func() {
		defer close(flapped)
		for i := 0; i < 200; i++ {
			conn.SetOnline(i%2 == 1)
		}
	}()
	trig.Wait()
	after := eng.calls.Load()
	<-flapped

	conn.SetOnline(false)
	conn.SetOnline(true)
	trig.Wait()
	assert.Equal(t, after, eng.calls.Load(), "connectivity changes after Wait start no syncs")
}

func TestConnectivity_Probe(t *testing.T) {
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	conn := NewConnectivity(srv.URL, time.Second, srv.Client(), nil)
	assert.True(t, conn.Probe(context.Background()), "any HTTP answer is online")
	assert.Equal(t, http.MethodHead, method.Load())

	srv.Close()
	assert.False(t, conn.Probe(context.Background()))
}

func TestConnectivity_RunTracksProbe(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			panic(http.ErrAbortHandler)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conn := NewConnectivity(srv.URL, 5*time.Millisecond, srv.Client(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		conn.Run(ctx)
		close(done)
	}()

	up.Store(false)
	require.Eventually(t, func() bool { return !conn.Online() }, 2*time.Second, 5*time.Millisecond)
	up.Store(true)
	require.Eventually(t, conn.Online, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestBackgroundTrigger_FiresUntilCancelled(t *testing.T) {
	eng := &countingSyncer{res: syncer.Result{Outcome: syncer.OutcomeNothingToSync}}
	bg := NewBackgroundTrigger(NewTrigger(eng, nil, nil), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bg.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return eng.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	after := eng.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, eng.calls.Load())
}

func TestBackgroundTrigger_DisabledInterval(t *testing.T) {
	eng := &countingSyncer{}
	bg := NewBackgroundTrigger(NewTrigger(eng, nil, nil), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	bg.Run(ctx)
	assert.Zero(t, eng.calls.Load())
}
