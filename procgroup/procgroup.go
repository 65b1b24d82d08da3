// Package procgroup spawns pipeline stages in a shared process group so the
// whole pipeline can be signalled at once.
package procgroup

import "errors"

// ErrUnsupported is returned on platforms without process groups.
var ErrUnsupported = errors.New("process groups not supported on this platform")
