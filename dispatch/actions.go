// Package dispatch drives the operator menu and turns choices into transfers.
package dispatch

import (
	"fmt"

	"github.com/franksops/reflash/engine"
	"github.com/franksops/reflash/probe"
)

// Action is a menu entry.
type Action int

const (
	LoadFromDepot Action = iota + 1
	ArchiveToDepot
	LoadFromLocal
	ArchiveToLocal
	Exit
)

// menuOrder is the order actions appear in.
var menuOrder = []Action{LoadFromDepot, ArchiveToDepot, LoadFromLocal, ArchiveToLocal, Exit}

func (a Action) String() string {
	switch a {
	case LoadFromDepot:
		return "Load image from depot"
	case ArchiveToDepot:
		return "Archive device to depot"
	case LoadFromLocal:
		return "Load image from local media"
	case ArchiveToLocal:
		return "Archive device to local media"
	case Exit:
		return "Exit"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Direction is the transfer direction of a, or zero for Exit.
func (a Action) Direction() engine.Direction {
	switch a {
	case LoadFromDepot, LoadFromLocal:
		return engine.Load
	case ArchiveToDepot, ArchiveToLocal:
		return engine.Archive
	}
	return 0
}

// Medium is where a's image lives, or zero for Exit.
func (a Action) Medium() engine.Medium {
	switch a {
	case LoadFromDepot, ArchiveToDepot:
		return engine.Depot
	case LoadFromLocal, ArchiveToLocal:
		return engine.Local
	}
	return 0
}

// Required is the capability a needs. Exit needs nothing.
func (a Action) Required() probe.Capabilities {
	if a == Exit {
		return 0
	}
	return a.Medium().Required()
}

// Offered returns the actions usable with caps, in menu order. Exit is
// always last.
func Offered(caps probe.Capabilities) []Action {
	out := make([]Action, 0, len(menuOrder))
	for _, a := range menuOrder {
		if caps.Has(a.Required()) {
			out = append(out, a)
		}
	}
	return out
}
