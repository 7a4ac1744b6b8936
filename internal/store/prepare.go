package store

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"stockd/internal/logging"
)

// DefaultPrepareTimeout bounds the data-preparation command.
const DefaultPrepareTimeout = 5 * time.Minute

// Prepare runs the external step that produces the dataset and waits for it.
// The command's output is logged, never forwarded to stdout.
func Prepare(ctx context.Context, argv []string, timeout time.Duration) error {
	if len(argv) == 0 || argv[0] == "" {
		return fmt.Errorf("empty prepare command")
	}
	if timeout <= 0 {
		timeout = DefaultPrepareTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryStore, "Prepare")
	defer timer.StopWithInfo()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if s := strings.TrimSpace(out.String()); s != "" {
		logging.StoreDebug("Prepare output: %s", s)
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("prepare command timed out after %v", timeout)
	}
	if err != nil {
		return fmt.Errorf("prepare command %s: %w", argv[0], err)
	}
	return nil
}
