package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/reflash/config"
)

var errDown = errors.New("down")

type fakePinger struct {
	mu        sync.Mutex
	up        map[string]bool
	pinged    []string
	deadlines []bool
}

func (f *fakePinger) Ping(ctx context.Context, host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	f.pinged = append(f.pinged, host)
	f.deadlines = append(f.deadlines, hasDeadline)
	if f.up[host] {
		return nil
	}
	return errDown
}

type fakeMounter struct {
	mu        sync.Mutex
	ok        map[string]bool
	unmounted []string
	mounted   []string
}

func (f *fakeMounter) Unmount(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmounted = append(f.unmounted, target)
	return nil
}

func (f *fakeMounter) Mount(_ context.Context, source, target, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = append(f.mounted, target)
	if f.ok[target] {
		return nil
	}
	return fmt.Errorf("mount %s: %w", source, errDown)
}

func TestProbe_AllOutcomeCombinations(t *testing.T) {
	cfg := config.Default()

	for mask := 0; mask < 16; mask++ {
		gateway := mask&1 != 0
		depot := mask&2 != 0
		depotMount := mask&4 != 0
		localMount := mask&8 != 0

		t.Run(fmt.Sprintf("gw=%v/depot=%v/nfs=%v/local=%v", gateway, depot, depotMount, localMount), func(t *testing.T) {
			pinger := &fakePinger{up: map[string]bool{
				cfg.GatewayAddr: gateway,
				cfg.DepotHost:   depot,
			}}
			mounter := &fakeMounter{ok: map[string]bool{
				cfg.NetworkMountPoint: depotMount,
				cfg.LocalMountPoint:   localMount,
			}}

			caps := NewProber(cfg, pinger, mounter).Probe(context.Background())

			assert.True(t, caps.Consistent(), "capability chain broken: %s", caps)
			assert.Equal(t, gateway, caps.Has(NetworkReachable))
			assert.Equal(t, gateway && depot, caps.Has(DepotReachable))
			assert.Equal(t, gateway && depot && depotMount, caps.Has(DepotMounted))
			assert.Equal(t, localMount, caps.Has(LocalMediaMounted))

			// local media is attempted regardless of the network chain
			assert.Contains(t, mounter.mounted, cfg.LocalMountPoint)
			if !gateway {
				assert.Equal(t, []string{cfg.GatewayAddr}, pinger.pinged)
			}
			if !(gateway && depot) {
				assert.NotContains(t, mounter.mounted, cfg.NetworkMountPoint)
				assert.NotContains(t, mounter.unmounted, cfg.NetworkMountPoint)
			}
		})
	}
}

func TestProbe_ChecksAreTimeBounded(t *testing.T) {
	cfg := config.Default()
	pinger := &fakePinger{up: map[string]bool{cfg.GatewayAddr: true, cfg.DepotHost: true}}
	mounter := &fakeMounter{ok: map[string]bool{}}

	NewProber(cfg, pinger, mounter).Probe(context.Background())

	require.Len(t, pinger.deadlines, 2)
	for _, d := range pinger.deadlines {
		assert.True(t, d)
	}
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProbe_HungPingTimesOut(t *testing.T) {
	cfg := config.Default()
	cfg.ProbeTimeout = 20 * time.Millisecond
	mounter := &fakeMounter{ok: map[string]bool{cfg.LocalMountPoint: true}}

	start := time.Now()
	caps := NewProber(cfg, slowPinger{}, mounter).Probe(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, LocalMediaMounted, caps)
}

// stuckMounter never returns from Unmount until released, like umount(2)
// on an unreachable NFS server.
type stuckMounter struct {
	release chan struct{}
}

func (m stuckMounter) Unmount(context.Context, string) error {
	<-m.release
	return nil
}

func (m stuckMounter) Mount(context.Context, string, string, string, string) error {
	return nil
}

func TestProbe_HungUnmountTimesOut(t *testing.T) {
	cfg := config.Default()
	cfg.ProbeTimeout = 20 * time.Millisecond
	pinger := &fakePinger{up: map[string]bool{cfg.GatewayAddr: true, cfg.DepotHost: true}}
	mounter := stuckMounter{release: make(chan struct{})}
	t.Cleanup(func() { close(mounter.release) })

	start := time.Now()
	caps := NewProber(cfg, pinger, mounter).Probe(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, NetworkReachable|DepotReachable, caps)
}

func TestMountArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-t", "nfs", "-o", "ro,nolock", "depot:/srv", "/mnt/images"},
		mountArgs("depot:/srv", "/mnt/images", "nfs", "ro,nolock"))
	assert.Equal(t, []string{"/dev/sdb1", "/mnt/usb"}, mountArgs("/dev/sdb1", "/mnt/usb", "", ""))
}

func TestWaitSeconds(t *testing.T) {
	assert.Equal(t, 5, waitSeconds(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, 1, waitSeconds(ctx))
}
