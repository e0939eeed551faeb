package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/turbo/internal/command"
)

// testCommand is a command whose handling is driven by its fields.
type testCommand struct {
	command.BaseCommand
	Value int
	Fail  bool
	Sleep time.Duration
}

func newTestCommand(value int) *testCommand {
	return &testCommand{
		BaseCommand: command.NewBaseCommand("test", "run", command.SourceInternal),
		Value:       value,
	}
}

// recordingExecutor records the commands it runs in order.
type recordingExecutor struct {
	mu    sync.Mutex
	calls []command.Command
}

func (e *recordingExecutor) Execute(ctx context.Context, cmd command.Command) (any, error) {
	e.mu.Lock()
	e.calls = append(e.calls, cmd)
	e.mu.Unlock()

	tc, ok := cmd.(*testCommand)
	if !ok {
		return "ok", nil
	}
	if tc.Sleep > 0 {
		time.Sleep(tc.Sleep)
	}
	if tc.Fail {
		return nil, errors.New("handler failed")
	}
	return tc.Value * 2, nil
}

func (e *recordingExecutor) values() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, 0, len(e.calls))
	for _, c := range e.calls {
		if tc, ok := c.(*testCommand); ok {
			out = append(out, tc.Value)
		}
	}
	return out
}

// startProcessor runs p in the background and stops it when the test ends.
func startProcessor(t *testing.T, p *CommandProcessor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	require.NoError(t, p.WaitForReady(ctx))
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})
}
