package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellOutput      = 8000
)

type shellArgs struct {
	Cmd     string `json:"cmd"`
	Timeout int    `json:"timeout"`
}

// shell runs a command via sh -c inside the workspace directory, capturing
// combined stdout+stderr truncated to maxShellOutput chars.
func (e *Executor) shell(ctx context.Context, args shellArgs) Result {
	timeout := defaultShellTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", args.Cmd)
	cmd.Dir = e.workspace

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return Result{Text: fmt.Sprintf("Error: timed out after %ds", int(timeout.Seconds()))}
	}
	if err != nil && output.Len() == 0 {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}

	text := strings.TrimSpace(output.String())
	if len(text) > maxShellOutput {
		text = text[:maxShellOutput]
	}
	if text == "" {
		text = "(no output)"
	}
	return Result{Text: text}
}
