package interaction

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// ExecOpener launches an external viewer command for each locator without
// waiting for it to exit.
type ExecOpener struct {
	Command string
	start   func(cmd *exec.Cmd) error
}

// NewExecOpener returns an opener running command (xdg-open when empty).
func NewExecOpener(command string) *ExecOpener {
	if strings.TrimSpace(command) == "" {
		command = "xdg-open"
	}
	return &ExecOpener{Command: command, start: (*exec.Cmd).Start}
}

func (o *ExecOpener) Open(ctx context.Context, locator string) error {
	fields := strings.Fields(o.Command)
	if len(fields) == 0 {
		return errors.New("empty viewer command")
	}
	args := append(fields[1:], locator)
	cmd := exec.CommandContext(ctx, fields[0], args...) // #nosec G204 -- operator configured viewer
	start := o.start
	if start == nil {
		start = (*exec.Cmd).Start
	}
	if err := start(cmd); err != nil {
		return errors.Wrapf(err, "open %s", locator)
	}
	if cmd.Process != nil {
		go func() { _ = cmd.Wait() }()
	}
	return nil
}
