package harness

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
)

// AnalyzerProcess is one running analyzer instance. Output is drained as
// it is produced, so a kill mid-run still yields the lines captured up to
// that point.
type AnalyzerProcess interface {
	// Wait blocks until the process exits and returns the transcript, one
	// entry per output line. The transcript is valid even when err is
	// non-nil; lines captured before a failure or kill are kept.
	Wait() ([]string, error)
}

// AnalyzerStarter launches analyzer processes. The production
// implementation is ExecStarter; tests substitute fakes.
type AnalyzerStarter interface {
	Start(ctx context.Context, binary string, args ...string) (AnalyzerProcess, error)
}

// ExecStarter runs the real analyzer binary. Canceling the start context
// kills the process; Wait then returns whatever was captured.
type ExecStarter struct{}

// Start launches the analyzer and begins draining its output.
func (ExecStarter) Start(ctx context.Context, binary string, args ...string) (AnalyzerProcess, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attach analyzer stdout pipe: %w", err)
	}
	// StdoutPipe installed the pipe's write end as cmd.Stdout. Sharing it
	// with stderr keeps analyzer error lines in the transcript.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start analyzer %s: %w", binary, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			p.lines = append(p.lines, scanner.Text())
		}
		p.scanErr = scanner.Err()
	}()

	return p, nil
}

// execProcess drains one exec'd analyzer. The done channel closes when the
// output pipe hits EOF; lines and scanErr must not be read before then.
type execProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	lines   []string
	scanErr error
}

// Wait finishes draining the output pipe, reaps the process, and returns
// the transcript.
func (p *execProcess) Wait() ([]string, error) {
	<-p.done
	if err := p.cmd.Wait(); err != nil {
		return p.lines, fmt.Errorf("analyzer exited abnormally: %w", err)
	}
	if p.scanErr != nil {
		return p.lines, fmt.Errorf("read analyzer output: %w", p.scanErr)
	}
	return p.lines, nil
}
