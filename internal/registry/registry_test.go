package registry

import (
	"errors"
	"testing"

	"whisperd/internal/models"
)

func TestCreateAndGet(t *testing.T) {
	r := New()

	if err := r.Create("job-1", "talk.mp3"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	view := r.Get("job-1")
	if view.State != models.JobStateQueued {
		t.Errorf("state = %q, want queued", view.State)
	}
	if view.Message != "" {
		t.Errorf("message = %q, want empty", view.Message)
	}
	if view.Filename != "talk.mp3" {
		t.Errorf("filename = %q", view.Filename)
	}
}

func TestCreateDuplicate(t *testing.T) {
	r := New()

	if err := r.Create("job-1", "a.mp3"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create("job-1", "b.mp3"); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("duplicate Create = %v, want ErrDuplicateJob", err)
	}
}

func TestGetUnknown(t *testing.T) {
	r := New()

	view := r.Get("no-such-job")
	if view.State != models.JobStateUnknown {
		t.Errorf("state = %q, want unknown", view.State)
	}
}

func TestTerminalStateIdempotentReads(t *testing.T) {
	r := New()
	if err := r.Create("job-1", "talk.mp3"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.SetState("job-1", models.JobStateDone)
	r.SetMessage("job-1", "done")

	first := r.Get("job-1")
	for i := 0; i < 5; i++ {
		if got := r.Get("job-1"); got != first {
			t.Fatalf("terminal snapshot changed: %+v vs %+v", got, first)
		}
	}
}

func TestSetOnUnknownJobIsNoop(t *testing.T) {
	r := New()
	r.SetState("ghost", models.JobStateRunning)
	r.SetMessage("ghost", "hello")

	if view := r.Get("ghost"); view.State != models.JobStateUnknown {
		t.Errorf("state = %q, want unknown", view.State)
	}
}

func TestLastWriteWinsMessage(t *testing.T) {
	r := New()
	if err := r.Create("job-1", "talk.mp3"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.SetMessage("job-1", "preprocessing")
	r.SetMessage("job-1", "transcribing")
	r.SetMessage("job-1", "done")

	if got := r.Get("job-1").Message; got != "done" {
		t.Errorf("message = %q, want latest write", got)
	}
}
