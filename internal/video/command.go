package video

import (
	"context"
	"io"
	"os/exec"
)

// CommandExecutor defines an interface for executing external commands.
// This abstraction enables unit testing without a real ffmpeg binary.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)

	// SetStdin sets the stdin for the command.
	SetStdin(stdin io.Reader)
}

// CommandBuilder defines an interface for building external commands.
type CommandBuilder interface {
	// BuildCommand creates a CommandExecutor bound to ctx.
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

// SetStdin sets stdin for the command.
func (r *RealCommandExecutor) SetStdin(stdin io.Reader) {
	r.cmd.Stdin = stdin
}

// RealCommandBuilder implements CommandBuilder using exec.CommandContext.
type RealCommandBuilder struct{}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	return &RealCommandExecutor{cmd: exec.CommandContext(ctx, name, args...)}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// Stdin holds everything read from the configured stdin during Run.
	Stdin []byte
	// RunCalled indicates whether Run was called.
	RunCalled bool

	stdin io.Reader
}

// Run drains stdin and returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	if m.stdin != nil {
		data, err := io.ReadAll(m.stdin)
		if err != nil {
			return nil, err
		}
		m.Stdin = data
	}
	return m.Output, m.Err
}

// SetStdin records the stdin reader.
func (m *MockCommandExecutor) SetStdin(stdin io.Reader) {
	m.stdin = stdin
}

// MockCommandBuilder implements CommandBuilder for testing.
type MockCommandBuilder struct {
	// Commands records all commands that were built.
	Commands []MockBuiltCommand
	// NextExecutor is the next executor to return. If nil, creates a default MockCommandExecutor.
	NextExecutor *MockCommandExecutor
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name     string
	Args     []string
	Executor *MockCommandExecutor
}

// BuildCommand creates a MockCommandExecutor and records the command details.
func (b *MockCommandBuilder) BuildCommand(_ context.Context, name string, args ...string) CommandExecutor {
	executor := b.NextExecutor
	b.NextExecutor = nil
	if executor == nil {
		executor = &MockCommandExecutor{}
	}
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args, Executor: executor})
	return executor
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}
