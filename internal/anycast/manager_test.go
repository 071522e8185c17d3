package anycast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRouting struct {
	mu        sync.Mutex
	announced map[string]bool
	fail      bool
}

func newFakeRouting() *fakeRouting { return &fakeRouting{announced: map[string]bool{}} }

func (f *fakeRouting) Announce(_ context.Context, vip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("bgp session down")
	}
	f.announced[vip] = true
	return nil
}

func (f *fakeRouting) Withdraw(_ context.Context, vip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("bgp session down")
	}
	f.announced[vip] = false
	return nil
}

func (f *fakeRouting) isAnnounced(vip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.announced[vip]
}

type fakeBinder struct{ bound []string }

func (b *fakeBinder) Bind(vip string) error {
	b.bound = append(b.bound, vip)
	return nil
}

func TestHealthyNodeAnnounces(t *testing.T) {
	routing := newFakeRouting()
	binder := &fakeBinder{}
	healthy := func(context.Context) error { return nil }

	m := NewManager(routing, binder, healthy, "192.0.2.53")
	m.TriggerCheck(context.Background())

	require.True(t, routing.isAnnounced("192.0.2.53"))
	require.Equal(t, []string{"192.0.2.53"}, binder.bound)
}

func TestUnhealthyNodeWithdraws(t *testing.T) {
	routing := newFakeRouting()
	binder := &fakeBinder{}
	healthErr := error(nil)
	health := func(context.Context) error { return healthErr }

	m := NewManager(routing, binder, health, "192.0.2.53")
	m.TriggerCheck(context.Background())
	require.True(t, routing.isAnnounced("192.0.2.53"))

	healthErr = errors.New("store unreachable")
	m.TriggerCheck(context.Background())
	require.False(t, routing.isAnnounced("192.0.2.53"))

	// Recovery re-announces without re-binding the VIP.
	healthErr = nil
	m.TriggerCheck(context.Background())
	require.True(t, routing.isAnnounced("192.0.2.53"))
	require.Len(t, binder.bound, 1)
}

func TestFailedWithdrawKeepsAnnouncedState(t *testing.T) {
	routing := newFakeRouting()
	healthErr := error(nil)
	health := func(context.Context) error { return healthErr }

	m := NewManager(routing, &fakeBinder{}, health, "192.0.2.53")
	m.TriggerCheck(context.Background())
	require.True(t, m.isAnnounced.Load())

	routing.fail = true
	healthErr = errors.New("unhealthy")
	m.TriggerCheck(context.Background())

	// Withdrawal failed, so the manager must keep trying on later checks.
	require.True(t, m.isAnnounced.Load())
}
