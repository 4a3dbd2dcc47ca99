package portscan

import (
	"context"
	"fmt"
	"os/exec"
)

// runCommand runs name with args via exec.CommandContext, so ctx
// cancellation delivers the kill signal to the child process
// (SPEC_FULL.md §5, "Resource cleanup"), and returns its stdout as text on
// success.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %v: %w", name, args, err)
	}
	return string(out), nil
}
