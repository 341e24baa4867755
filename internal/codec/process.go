// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/ManuGH/camrelay/internal/procgroup"
)

// process is one spawned stage of a pipeline.
type process struct {
	name   string
	cmd    *exec.Cmd
	stderr *LineRing

	done chan struct{}
	err  error // valid once done is closed
}

func newProcess(name, bin string, args []string) *process {
	cmd := exec.Command(bin, args...) // #nosec G204 -- binaries come from operator config
	procgroup.Set(cmd)
	ring := NewLineRing(64)
	cmd.Stderr = ring
	return &process{name: name, cmd: cmd, stderr: ring, done: make(chan struct{})}
}

func (p *process) start() error {
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.name, err)
	}
	go func() {
		p.err = p.cmd.Wait()
		close(p.done)
	}()
	return nil
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// waitCh adapts done/err to the channel shape procgroup.Terminate consumes.
func (p *process) waitCh() <-chan error {
	ch := make(chan error, 1)
	go func() {
		<-p.done
		ch <- p.err
	}()
	return ch
}

func (p *process) tail() string {
	return strings.Join(p.stderr.LastN(5), " | ")
}
