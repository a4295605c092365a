package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Process is a running browser as seen by the handshake.
type Process interface {
	Pid() int
	// Lines delivers combined stdout/stderr output line by line and is
	// closed when output ends.
	Lines() <-chan string
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitErr is the wait result; valid after Done.
	ExitErr() error
	Kill() error
}

// Command describes what to spawn.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string
}

// Spawner starts a process.
type Spawner interface {
	Spawn(ctx context.Context, cmd Command) (Process, error)
}

func (c Command) build() *exec.Cmd {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	for key, value := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	return cmd
}

// process tracks an exec.Cmd whose output arrives on one reader.
type process struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}

	mu      sync.Mutex
	exitErr error
}

func newProcess(cmd *exec.Cmd) *process {
	return &process{
		cmd:   cmd,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
}

// readOutput scans r until EOF or a read error. A pty returns EIO once the
// child exits, which ends the scan like EOF.
func (p *process) readOutput(r io.Reader) {
	defer close(p.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
}

// monitor waits for the process to exit. Output is left to readOutput so
// lines written just before exit are still delivered.
func (p *process) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	close(p.done)
}

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Lines() <-chan string  { return p.lines }
func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

// ExecSpawner runs the browser with stdout and stderr joined on a pipe.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := c.build()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	p := newProcess(cmd)
	go p.readOutput(pr)
	go p.monitor()
	return p, nil
}

// PTYSpawner runs the browser attached to a pseudo terminal. Some builds only
// print the endpoint announcement when stderr is a terminal.
type PTYSpawner struct {
	Cols, Rows int
}

func (s PTYSpawner) Spawn(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cols, rows := s.Cols, s.Rows
	if cols <= 0 {
		cols = 200
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := c.build()
	cmd.Env = append(cmd.Env, "TERM=dumb")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	p := newProcess(cmd)
	go func() {
		p.readOutput(ptmx)
		ptmx.Close()
	}()
	go p.monitor()
	return p, nil
}
