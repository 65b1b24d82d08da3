// Package probe establishes which transfer sources are usable on this kiosk.
package probe

import (
	"errors"
	"strings"
)

// ErrEnvironmentUnready is returned by Assess when the environment cannot
// support this tool at all.
var ErrEnvironmentUnready = errors.New("environment unready")

// Capabilities is an immutable set of environment readiness flags.
type Capabilities uint8

const (
	NetworkReachable Capabilities = 1 << iota
	DepotReachable
	DepotMounted
	LocalMediaMounted
)

// AllCapabilities is every flag set.
const AllCapabilities = NetworkReachable | DepotReachable | DepotMounted | LocalMediaMounted

var capabilityNames = []struct {
	flag Capabilities
	name string
}{
	{NetworkReachable, "network"},
	{DepotReachable, "depot"},
	{DepotMounted, "depot-mounted"},
	{LocalMediaMounted, "local-media"},
}

// Has reports whether every flag in want is set.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// With returns c with the given flags set.
func (c Capabilities) With(flags Capabilities) Capabilities {
	return c | flags
}

// Consistent reports whether the depot chain holds:
// DepotMounted implies DepotReachable implies NetworkReachable.
func (c Capabilities) Consistent() bool {
	if c.Has(DepotMounted) && !c.Has(DepotReachable) {
		return false
	}
	if c.Has(DepotReachable) && !c.Has(NetworkReachable) {
		return false
	}
	return true
}

func (c Capabilities) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Assess decides whether the probed environment is usable at all.
// A missing network is fatal only when the configuration requires it;
// everything else merely removes menu entries.
func Assess(caps Capabilities, requireNetwork bool) error {
	if requireNetwork && !caps.Has(NetworkReachable) {
		return errors.Join(ErrEnvironmentUnready, errors.New("network unreachable"))
	}
	return nil
}
