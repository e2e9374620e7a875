package executor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whisperd/internal/asr"
	"whisperd/internal/broadcast"
	"whisperd/internal/caption"
	"whisperd/internal/models"
	"whisperd/internal/registry"
)

// scriptedLoader fails with a resource error for the first failUntil ladder
// steps, then hands out engines that transcribe to a fixed result.
type scriptedLoader struct {
	failUntil int
	fatalAt   int // 1-based attempt index returning a fatal error, 0 = never
	attempts  []asr.ResourceConfig
	segments  []caption.Segment
}

type scriptedEngine struct {
	segments []caption.Segment
}

func (e *scriptedEngine) Transcribe(wavPath, language string) ([]caption.Segment, error) {
	return e.segments, nil
}

func (l *scriptedLoader) Load(cfg asr.ResourceConfig) (asr.Engine, error) {
	l.attempts = append(l.attempts, cfg)
	n := len(l.attempts)
	if l.fatalAt > 0 && n == l.fatalAt {
		return nil, errors.New("invalid model identifier")
	}
	if n <= l.failUntil {
		return nil, &asr.ResourceError{Config: cfg, Err: errors.New("CUDA out of memory")}
	}
	return &scriptedEngine{segments: l.segments}, nil
}

func newTestExecutor(t *testing.T, loader asr.Loader) (*Executor, *registry.Registry, *broadcast.Hub) {
	t.Helper()
	reg := registry.New()
	hub := broadcast.NewHub()
	e := New(reg, hub, asr.NewCache(loader), nil, 4)
	e.normalize = func(inputPath, outputPath string) error {
		return os.WriteFile(outputPath, []byte("wav"), 0644)
	}
	e.Start()
	t.Cleanup(e.Stop)
	return e, reg, hub
}

func submitTestJob(t *testing.T, e *Executor, reg *registry.Registry, dir string) Task {
	t.Helper()
	inputDir := filepath.Join(dir, "input")
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		t.Fatal(err)
	}
	inputPath := filepath.Join(inputDir, "talk.mp3")
	if err := os.WriteFile(inputPath, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	task := Task{
		JobID:     "job-1",
		InputPath: inputPath,
		Filename:  "talk.mp3",
		OutDir:    filepath.Join(dir, "out"),
		Config:    asr.ResourceConfig{Model: "large-v3", Device: asr.DeviceCUDA, Precision: asr.PrecisionFloat16},
		Language:  "en",
	}
	if err := reg.Create(task.JobID, task.Filename); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return task
}

func waitForTerminal(t *testing.T, reg *registry.Registry, jobID string) models.JobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view := reg.Get(jobID)
		if models.IsTerminal(view.State) {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state: %+v", jobID, reg.Get(jobID))
	return models.JobView{}
}

// collectUntil gathers events until one equals last.
func collectUntil(t *testing.T, obs *broadcast.Observer, last string) []string {
	t.Helper()
	var events []string
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-obs.Events():
			events = append(events, m)
			if m == last {
				return events
			}
		case <-deadline:
			t.Fatalf("never observed %q; events so far: %v", last, events)
		}
	}
}

func countPrefix(events []string, prefix string) int {
	n := 0
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func TestLadderAdvanceOnResourceErrors(t *testing.T) {
	loader := &scriptedLoader{
		failUntil: 3,
		segments: []caption.Segment{
			{Start: 0, End: 1.5, Text: "hello"},
			{Start: 1.5, End: 3.25, Text: "world"},
		},
	}
	e, reg, hub := newTestExecutor(t, loader)

	dir := t.TempDir()
	obs := hub.Attach("job-1")
	defer hub.Detach("job-1", obs)

	submitTestJob(t, e, reg, dir)
	events := collectUntil(t, obs, "done")
	view := waitForTerminal(t, reg, "job-1")

	if view.State != models.JobStateDone {
		t.Fatalf("state = %q (%q), want done", view.State, view.Message)
	}
	if len(loader.attempts) != 4 {
		t.Fatalf("engine loaded %d times, want 4", len(loader.attempts))
	}
	// Step 4 of the en ladder is medium.en at int8_float16.
	last := loader.attempts[3]
	if last.Model != "medium.en" || last.Precision != asr.PrecisionInt8Float16 {
		t.Errorf("successful attempt used %v", last)
	}
	if got := countPrefix(events, "loading model "); got != 4 {
		t.Errorf("observed %d loading-model events, want 4; events: %v", got, events)
	}
	if got := countPrefix(events, "retry: "); got != 3 {
		t.Errorf("observed %d retry events, want 3", got)
	}
	if events[len(events)-1] != "done" {
		t.Errorf("final event = %q, want done", events[len(events)-1])
	}

	srt, err := os.ReadFile(filepath.Join(dir, "out", "talk.srt"))
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !strings.Contains(string(srt), "00:00:00,000 --> 00:00:01,500") {
		t.Errorf("srt missing first block: %s", srt)
	}
	if !strings.Contains(string(srt), "00:00:01,500 --> 00:00:03,250") {
		t.Errorf("srt missing second block: %s", srt)
	}
	for _, name := range []string{"talk.txt", "talk.vtt"} {
		if _, err := os.Stat(filepath.Join(dir, "out", name)); err != nil {
			t.Errorf("artifact %s: %v", name, err)
		}
	}
}

func TestFatalErrorShortCircuits(t *testing.T) {
	loader := &scriptedLoader{fatalAt: 1}
	e, reg, _ := newTestExecutor(t, loader)

	dir := t.TempDir()
	submitTestJob(t, e, reg, dir)
	view := waitForTerminal(t, reg, "job-1")

	if view.State != models.JobStateError {
		t.Fatalf("state = %q, want error", view.State)
	}
	if len(loader.attempts) != 1 {
		t.Errorf("engine loaded %d times, want exactly 1", len(loader.attempts))
	}
	if !strings.Contains(view.Message, "invalid model identifier") {
		t.Errorf("message = %q, want the fatal diagnostic", view.Message)
	}
}

func TestLadderExhaustionReportsLastError(t *testing.T) {
	loader := &scriptedLoader{failUntil: 99}
	e, reg, _ := newTestExecutor(t, loader)

	dir := t.TempDir()
	submitTestJob(t, e, reg, dir)
	view := waitForTerminal(t, reg, "job-1")

	if view.State != models.JobStateError {
		t.Fatalf("state = %q, want error", view.State)
	}
	if len(loader.attempts) != 5 {
		t.Errorf("engine loaded %d times, want all 5 ladder steps", len(loader.attempts))
	}
	if !strings.Contains(view.Message, "CUDA out of memory") {
		t.Errorf("message = %q, want the last failure", view.Message)
	}
}

func TestNormalizationFailureSkipsLadder(t *testing.T) {
	loader := &scriptedLoader{}
	e, reg, _ := newTestExecutor(t, loader)
	e.normalize = func(inputPath, outputPath string) error {
		return errors.New("ffmpeg conversion failed: unsupported codec")
	}

	dir := t.TempDir()
	submitTestJob(t, e, reg, dir)
	view := waitForTerminal(t, reg, "job-1")

	if view.State != models.JobStateError {
		t.Fatalf("state = %q, want error", view.State)
	}
	if len(loader.attempts) != 0 {
		t.Errorf("ladder entered despite preprocessing failure (%d attempts)", len(loader.attempts))
	}
	if !strings.Contains(view.Message, "ffmpeg conversion failed") {
		t.Errorf("message = %q", view.Message)
	}
}

func TestSubmitBackpressure(t *testing.T) {
	reg := registry.New()
	hub := broadcast.NewHub()
	e := New(reg, hub, asr.NewCache(&scriptedLoader{}), nil, 1)
	// Not started: the queue fills immediately.

	if err := e.Submit(Task{JobID: "a"}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := e.Submit(Task{JobID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Submit = %v, want ErrQueueFull", err)
	}
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	loader := &scriptedLoader{segments: []caption.Segment{{Start: 0, End: 1, Text: "ok"}}}
	reg := registry.New()
	hub := broadcast.NewHub()
	e := New(reg, hub, asr.NewCache(loader), nil, 8)

	var order []string
	e.normalize = func(inputPath, outputPath string) error {
		order = append(order, filepath.Base(filepath.Dir(filepath.Dir(inputPath))))
		return os.WriteFile(outputPath, []byte("wav"), 0644)
	}

	dir := t.TempDir()
	for _, id := range []string{"first", "second", "third"} {
		inputDir := filepath.Join(dir, id, "input")
		if err := os.MkdirAll(inputDir, 0755); err != nil {
			t.Fatal(err)
		}
		inputPath := filepath.Join(inputDir, "a.mp3")
		if err := os.WriteFile(inputPath, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := reg.Create(id, "a.mp3"); err != nil {
			t.Fatal(err)
		}
		err := e.Submit(Task{
			JobID:     id,
			InputPath: inputPath,
			Filename:  "a.mp3",
			OutDir:    filepath.Join(dir, id, "out"),
			Config:    asr.ResourceConfig{Model: "large-v3", Device: asr.DeviceCPU, Precision: asr.PrecisionInt8},
			Language:  "en",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	e.Start()
	defer e.Stop()
	waitForTerminal(t, reg, "third")

	want := []string{"first", "second", "third"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("processing order = %v, want %v", order, want)
		}
	}
}
