package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandPinger sends a single ICMP echo through the system ping binary.
type CommandPinger struct {
	// Path of the ping binary, "ping" when empty.
	Path string
}

// Ping succeeds when host answers one echo request before ctx expires.
func (c CommandPinger) Ping(ctx context.Context, host string) error {
	bin := c.Path
	if bin == "" {
		bin = "ping"
	}
	args := []string{"-c", "1", "-W", strconv.Itoa(waitSeconds(ctx)), host}
	return runCommand(ctx, bin, args...)
}

// waitSeconds converts the remaining context budget into ping's -W value.
func waitSeconds(ctx context.Context) int {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 5
	}
	secs := int(time.Until(deadline).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

func mountArgs(source, target, fstype, options string) []string {
	var args []string
	if fstype != "" {
		args = append(args, "-t", fstype)
	}
	if options != "" {
		args = append(args, "-o", options)
	}
	return append(args, source, target)
}

func runCommand(ctx context.Context, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", bin, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", bin, err, msg)
		}
		return fmt.Errorf("%s: %w", bin, err)
	}
	return nil
}
