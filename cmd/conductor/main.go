// Command conductor wires the runtime's components together and runs a
// short demonstration: it registers a small roster of specialized
// workers, submits a handful of tasks with dependencies and mixed
// priorities, and prints the task history recorded after a fixed
// two-second wait. It is a wiring example, not the production entry
// point — a real deployment supplies its own worker implementations and
// a durable memory.Store (see runtime/memory/mongo).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noteldar/conductor/runtime/config"
	"github.com/noteldar/conductor/runtime/exec"
	"github.com/noteldar/conductor/runtime/memory/inmem"
	"github.com/noteldar/conductor/runtime/orchestrator"
	"github.com/noteldar/conductor/runtime/task"
	"github.com/noteldar/conductor/runtime/worker"
)

type demoWorker struct {
	*worker.BaseWorker
	work func(ctx context.Context, t *task.Task) (string, error)
}

func newDemoWorker(name, description string, work func(context.Context, *task.Task) (string, error), caps ...worker.Capability) *demoWorker {
	return &demoWorker{
		BaseWorker: worker.NewBaseWorker(name, description, caps...),
		work:       work,
	}
}

func (w *demoWorker) ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error) {
	start := time.Now()
	payload, err := w.work(ctx, t)
	if err != nil {
		return nil, err
	}
	return &task.Result{
		TaskID:      t.ID,
		WorkerName:  w.Name(),
		Status:      task.StatusSuccess,
		Payload:     payload,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}, nil
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (optional; defaults applied otherwise)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "conductor: loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := inmem.New()
	eng := exec.New(cfg.MaxConcurrentWorkers)
	orch := orchestrator.New(cfg, eng, store)

	meetingPrep := newDemoWorker("meeting-prep", "prepares agendas and briefing notes",
		func(_ context.Context, t *task.Task) (string, error) {
			return fmt.Sprintf("prepared briefing for %q", t.Description), nil
		}, "meeting.prepare")
	decomposer := newDemoWorker("task-decomposition", "breaks large asks into subtasks",
		func(_ context.Context, t *task.Task) (string, error) {
			return fmt.Sprintf("decomposed %q into subtasks", t.Description), nil
		}, "task.decompose")
	comms := newDemoWorker("communication", "drafts and sends messages",
		func(_ context.Context, t *task.Task) (string, error) {
			return fmt.Sprintf("drafted communication for %q", t.Description), nil
		}, "comms.draft")

	for _, w := range []worker.Worker{meetingPrep, decomposer, comms} {
		if err := orch.Register(ctx, w); err != nil {
			fmt.Fprintf(os.Stderr, "conductor: registering %s: %v\n", w.Name(), err)
			os.Exit(1)
		}
	}

	orch.RunScheduler(ctx)
	orch.StartHealthMonitor(ctx, 30*time.Second)
	store.StartPurgeLoop(ctx, time.Hour, cfg.MemoryRetention())
	defer orch.Shutdown(context.Background())
	defer orch.StopHealthMonitor()
	defer store.StopPurgeLoop()

	decomposeID, err := orch.Submit(ctx, orchestrator.Submission{
		Kind:        "task.decompose",
		Description: "plan next week's product review",
		Priority:    task.High,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "conductor: submit: %v\n", err)
		os.Exit(1)
	}

	if _, err := orch.Submit(ctx, orchestrator.Submission{
		Kind:         "meeting.prepare",
		Description:  "brief for product review",
		Priority:     task.Medium,
		Dependencies: []string{decomposeID},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "conductor: submit: %v\n", err)
		os.Exit(1)
	}

	if _, err := orch.Submit(ctx, orchestrator.Submission{
		Kind:        "comms.draft",
		Description: "nudge stakeholders about the review",
		Priority:    task.Low,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "conductor: submit: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(2 * time.Second)

	history, err := store.TaskHistory(ctx, "", 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conductor: task history: %v\n", err)
		os.Exit(1)
	}
	for _, r := range history {
		fmt.Printf("task=%s worker=%s status=%s payload=%v\n", r.TaskID, r.WorkerName, r.Status, r.Payload)
	}
}
