package orchestration

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/qhlab/qcal/internal/driver"
	"github.com/qhlab/qcal/internal/nodes"
	"github.com/qhlab/qcal/internal/progress"
	"github.com/qhlab/qcal/internal/quam"
)

// slowReporter consumes progress updates far slower than the driver
// produces them. The run must still complete: progress forwarding is
// lossy by design, never blocking.
type slowReporter struct{}

func (slowReporter) DisplayProgress(wg *sync.WaitGroup, ch <-chan progress.ProgressUpdate, _ int, _ io.Writer) {
	defer wg.Done()
	for range ch {
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRunNodeDoesNotDeadlockOnSlowReporter(t *testing.T) {
	t.Parallel()
	m := quam.DefaultMachine(2)
	sim := driver.NewSimulator(m, driver.WithSeed(4), driver.WithNoiseSigma(1e-4))

	p := runParams(t)
	node, err := nodes.New(nodes.PowerRabiEFName, p)
	if err != nil {
		t.Fatal(err)
	}
	rc := &nodes.RunContext{Params: p, Machine: m, Executor: sim}

	done := make(chan RunResult, 1)
	go func() {
		done <- RunNode(context.Background(), node, rc, slowReporter{}, io.Discard)
	}()

	select {
	case res := <-done:
		if res.Err != nil {
			t.Fatalf("run failed: %v", res.Err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("run did not complete; progress forwarding deadlocked")
	}
}
