package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/franksops/reflash/config"
	"github.com/franksops/reflash/logging"
)

// Pinger checks reachability of a single host.
type Pinger interface {
	Ping(ctx context.Context, host string) error
}

// Mounter attaches filesystems to mount points.
type Mounter interface {
	// Unmount detaches target. A target that is not mounted is not an error.
	Unmount(ctx context.Context, target string) error
	Mount(ctx context.Context, source, target, fstype, options string) error
}

// Prober runs the startup environment checks.
type Prober struct {
	cfg     config.Config
	pinger  Pinger
	mounter Mounter
	timeout time.Duration
	log     zerolog.Logger
}

// NewProber creates a Prober using the layout from cfg.
func NewProber(cfg config.Config, pinger Pinger, mounter Mounter) *Prober {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		cfg:     cfg,
		pinger:  pinger,
		mounter: mounter,
		timeout: timeout,
		log:     logging.WithComponent("probe"),
	}
}

// Probe checks the network chain and the local media, in that order.
// It never fails: a check that does not pass leaves its flag, and every
// flag depending on it, cleared.
func (p *Prober) Probe(ctx context.Context) Capabilities {
	var caps Capabilities

	if p.ping(ctx, "gateway", p.cfg.GatewayAddr) {
		caps = caps.With(NetworkReachable)
		if p.ping(ctx, "depot", p.cfg.DepotHost) {
			caps = caps.With(DepotReachable)
			if p.remount(ctx, "depot", p.cfg.DepotSource(), p.cfg.NetworkMountPoint,
				p.cfg.NetworkMountType, p.cfg.NetworkMountOptions) {
				caps = caps.With(DepotMounted)
			}
		}
	}

	if p.remount(ctx, "local-media", p.cfg.LocalMountDevice, p.cfg.LocalMountPoint, "", "") {
		caps = caps.With(LocalMediaMounted)
	}

	p.log.Info().Str(logging.FieldCaps, caps.String()).Msg("environment probed")
	return caps
}

func (p *Prober) ping(ctx context.Context, name, host string) bool {
	return p.check(ctx, name, func(ctx context.Context) error {
		return p.pinger.Ping(ctx, host)
	})
}

func (p *Prober) remount(ctx context.Context, name, source, target, fstype, options string) bool {
	return p.check(ctx, name+"-mount", func(ctx context.Context) error {
		if err := p.mounter.Unmount(ctx, target); err != nil {
			return fmt.Errorf("unmount %s: %w", target, err)
		}
		if err := p.mounter.Mount(ctx, source, target, fstype, options); err != nil {
			return fmt.Errorf("mount %s on %s: %w", source, target, err)
		}
		return nil
	})
}

// check runs fn under the probe timeout and logs the outcome. A check that
// ignores its context is abandoned once the deadline passes.
func (p *Prober) check(ctx context.Context, name string, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%s: %w", name, context.Cause(ctx))
	}
	if err != nil {
		p.log.Warn().Err(err).Str("check", name).Dur("elapsed", time.Since(start)).Msg("environment check failed")
		return false
	}
	p.log.Debug().Str("check", name).Dur("elapsed", time.Since(start)).Msg("environment check passed")
	return true
}
