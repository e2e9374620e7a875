// Package executor runs transcription jobs on a single dedicated worker.
// The engine holds an exclusive accelerator, so jobs are processed strictly
// in submission order; the control plane only ever blocks long enough to
// enqueue.
package executor

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"whisperd/internal/asr"
	"whisperd/internal/broadcast"
	"whisperd/internal/caption"
	"whisperd/internal/models"
	"whisperd/internal/registry"
	"whisperd/internal/storage"
)

// ErrQueueFull is returned by Submit when the task queue is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// Task describes one submitted transcription job.
type Task struct {
	JobID     string
	InputPath string // raw upload
	Filename  string // original upload name, artifact stems derive from it
	OutDir    string
	Config    asr.ResourceConfig
	Language  string
}

// Executor owns the worker goroutine and the bounded task queue.
type Executor struct {
	reg     *registry.Registry
	hub     *broadcast.Hub
	engines *asr.Cache
	history *storage.JobRepository // optional, best-effort

	queue chan Task
	stop  chan struct{}
	wg    sync.WaitGroup

	// normalize converts raw input to the canonical waveform. Stubbed in tests.
	normalize func(inputPath, outputPath string) error
}

// New creates an executor with the given queue capacity.
func New(reg *registry.Registry, hub *broadcast.Hub, engines *asr.Cache, history *storage.JobRepository, capacity int) *Executor {
	if capacity <= 0 {
		capacity = 32
	}
	return &Executor{
		reg:     reg,
		hub:     hub,
		engines: engines,
		history: history,
		queue:   make(chan Task, capacity),
		stop:    make(chan struct{}),

		normalize: asr.ConvertToWav,
	}
}

// Start launches the single worker goroutine.
func (e *Executor) Start() {
	e.wg.Add(1)
	go e.run()
	log.Println("Executor started")
}

// Stop stops the worker after the current job finishes. Queued tasks are
// abandoned; their registry entries stay queued.
func (e *Executor) Stop() {
	close(e.stop)
	e.wg.Wait()
	log.Println("Executor stopped")
}

// Submit enqueues a task and returns immediately. ErrQueueFull applies
// backpressure instead of growing the queue without bound.
func (e *Executor) Submit(task Task) error {
	select {
	case e.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Executor) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stop:
			return
		case task := <-e.queue:
			e.process(task)
		}
	}
}

// process executes one job: normalize, walk the degradation ladder, render
// artifacts. All failures end in the registry as state error with a
// human-readable message; nothing propagates to the control plane.
func (e *Executor) process(task Task) {
	ctx := context.Background()

	// Every emitted event is both the job's current message (polling) and a
	// live broadcast (observers).
	emit := func(m string) {
		e.reg.SetMessage(task.JobID, m)
		e.hub.Publish(task.JobID, m)
	}
	fail := func(msg string) {
		emit(msg)
		e.reg.SetState(task.JobID, models.JobStateError)
		e.recordError(ctx, task.JobID, msg)
		log.Printf("Job %s failed: %s", task.JobID, msg)
	}

	e.reg.SetState(task.JobID, models.JobStateRunning)
	e.recordRunning(ctx, task.JobID)
	log.Printf("Processing job %s (%s)", task.JobID, task.Filename)

	emit("preprocess: ffmpeg → wav")
	stem := strings.TrimSuffix(task.Filename, filepath.Ext(task.Filename))
	wavPath := filepath.Join(filepath.Dir(task.InputPath), stem+".wav")
	if err := e.normalize(task.InputPath, wavPath); err != nil {
		fail(err.Error())
		return
	}

	segments, err := e.transcribe(task, wavPath, emit)
	if err != nil {
		fail(err.Error())
		return
	}

	if err := writeArtifacts(task.OutDir, stem, segments); err != nil {
		fail("failed to write artifacts: " + err.Error())
		return
	}

	e.reg.SetState(task.JobID, models.JobStateDone)
	e.recordDone(ctx, task.JobID)
	emit("done")
	log.Printf("Job %s completed (%d segments)", task.JobID, len(segments))
}

// transcribe walks the fallback ladder. Resource failures advance to the
// next candidate; any other error class aborts immediately. Exhaustion
// surfaces the last recorded failure, not an aggregate.
func (e *Executor) transcribe(task Task, wavPath string, emit func(string)) ([]caption.Segment, error) {
	var lastErr error

	for _, cfg := range asr.Ladder(task.Config, task.Language) {
		emit("loading model " + cfg.String())
		engine, err := e.engines.Get(cfg)
		if err != nil {
			if asr.IsResourceError(err) {
				lastErr = err
				emit("retry: " + err.Error())
				continue
			}
			return nil, err
		}

		emit("transcribing…")
		segments, err := engine.Transcribe(wavPath, task.Language)
		if err != nil {
			if asr.IsResourceError(err) {
				lastErr = err
				emit("retry: " + err.Error())
				continue
			}
			return nil, err
		}
		return segments, nil
	}

	return nil, lastErr
}

// writeArtifacts renders the three sibling artifacts named by the upload's
// filename stem.
func writeArtifacts(outDir, stem string, segments []caption.Segment) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	artifacts := map[string]string{
		stem + ".txt": caption.RenderPlaintext(segments),
		stem + ".srt": caption.RenderSRT(segments),
		stem + ".vtt": caption.RenderVTT(segments),
	}
	for name, content := range artifacts {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// History writes are best-effort: the in-memory registry is authoritative
// and a history failure must not affect the job.

func (e *Executor) recordRunning(ctx context.Context, id string) {
	if e.history == nil {
		return
	}
	if err := e.history.MarkRunning(ctx, id); err != nil {
		log.Printf("history: mark running %s: %v", id, err)
	}
}

func (e *Executor) recordDone(ctx context.Context, id string) {
	if e.history == nil {
		return
	}
	if err := e.history.MarkDone(ctx, id); err != nil {
		log.Printf("history: mark done %s: %v", id, err)
	}
}

func (e *Executor) recordError(ctx context.Context, id, msg string) {
	if e.history == nil {
		return
	}
	if err := e.history.MarkError(ctx, id, msg); err != nil {
		log.Printf("history: mark error %s: %v", id, err)
	}
}
