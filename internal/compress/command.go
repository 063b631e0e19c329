package compress

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// CommandExecutor runs one prepared external command.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// CommandBuilder prepares external commands. It is the seam that lets the
// compressor be tested without the real tool installed.
type CommandBuilder interface {
	// LookPath reports where the named binary is, or an error when it is
	// not installed.
	LookPath(file string) (string, error)

	// BuildCommand creates a CommandExecutor bound to ctx; cancelling ctx
	// kills the process.
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// RealCommandBuilder implements CommandBuilder using os/exec.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// LookPath searches PATH for file.
func (b *RealCommandBuilder) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (b *RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	cmd := exec.CommandContext(ctx, name, args...)
	// Give the tool a moment to exit after the kill signal before Wait
	// returns regardless of its pipes.
	cmd.WaitDelay = 2 * time.Second
	return &RealCommandExecutor{cmd: cmd}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// Delay makes Run block, returning early with the context error when
	// the context ends first.
	Delay time.Duration
	// OnRun, when set, runs before Run returns; tests use it to produce the
	// tool's output file.
	OnRun func(args []string) error
	// RunCalled indicates whether Run was called.
	RunCalled bool

	ctx  context.Context
	args []string
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return m.Output, ctx.Err()
		case <-t.C:
		}
	}
	if m.OnRun != nil {
		if err := m.OnRun(m.args); err != nil {
			return m.Output, err
		}
	}
	return m.Output, m.Err
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// MockCommandBuilder implements CommandBuilder for testing.
type MockCommandBuilder struct {
	mu sync.Mutex

	// Commands records all commands that were built.
	Commands []MockBuiltCommand
	// NextExecutor is the next executor to return. If nil, creates a default MockCommandExecutor.
	NextExecutor *MockCommandExecutor
	// Missing lists binaries LookPath reports as not installed.
	Missing map[string]bool
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// LookPath fails for binaries listed in Missing.
func (b *MockCommandBuilder) LookPath(file string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Missing[file] {
		return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + file, nil
}

// BuildCommand returns the pending executor and records the command details.
func (b *MockCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})

	executor := b.NextExecutor
	b.NextExecutor = nil
	if executor == nil {
		executor = &MockCommandExecutor{}
	}
	executor.ctx = ctx
	executor.args = args
	return executor
}

// SetNextExecutor sets the executor to return for the next BuildCommand call.
func (b *MockCommandBuilder) SetNextExecutor(executor *MockCommandExecutor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.NextExecutor = executor
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}
