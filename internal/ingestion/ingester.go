// Package ingestion persists submitted media into the per-job directory
// layout and hands the work to the executor.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"whisperd/internal/asr"
	"whisperd/internal/executor"
	"whisperd/internal/models"
	"whisperd/internal/registry"
	"whisperd/internal/storage"
	"whisperd/internal/youtube"
)

// ErrUnsupportedFormat is returned for uploads in a container ffmpeg is not
// expected to handle.
var ErrUnsupportedFormat = errors.New("unsupported media format")

// Ingester creates job directories, stores the raw input, registers the job
// and enqueues it.
type Ingester struct {
	exec    *executor.Executor
	reg     *registry.Registry
	history *storage.JobRepository // optional
	yt      *youtube.Client
	dataDir string
}

// NewIngester creates a new Ingester rooted at dataDir.
func NewIngester(exec *executor.Executor, reg *registry.Registry, history *storage.JobRepository, dataDir string) *Ingester {
	return &Ingester{
		exec:    exec,
		reg:     reg,
		history: history,
		yt:      youtube.NewClient(),
		dataDir: dataDir,
	}
}

// Request carries the transcription parameters common to all input sources.
type Request struct {
	Config   asr.ResourceConfig
	Language string
}

// SubmitUpload stores an uploaded file and queues its transcription job.
// The returned job ID is immediately pollable.
func (i *Ingester) SubmitUpload(ctx context.Context, filename string, r io.Reader, req Request) (string, error) {
	if !asr.IsSupportedFormat(filename) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	jobID := uuid.New().String()
	inputDir, err := i.makeJobDirs(jobID)
	if err != nil {
		return "", err
	}

	inputPath := filepath.Join(inputDir, filename)
	dest, err := os.Create(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	_, err = io.Copy(dest, r)
	dest.Close()
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return jobID, i.enqueue(ctx, jobID, inputPath, filename, req)
}

// SubmitURL downloads the audio track of a YouTube video and queues its
// transcription job. Returns the job ID and the derived filename.
func (i *Ingester) SubmitURL(ctx context.Context, videoURL string, req Request) (string, string, error) {
	jobID := uuid.New().String()
	inputDir, err := i.makeJobDirs(jobID)
	if err != nil {
		return "", "", err
	}

	audio, err := i.yt.DownloadAudio(ctx, videoURL, inputDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to download audio: %w", err)
	}

	return jobID, audio.Filename, i.enqueue(ctx, jobID, audio.Path, audio.Filename, req)
}

// makeJobDirs lays out DATA_DIR/jobs/<id>/{input,out} and returns the input dir.
func (i *Ingester) makeJobDirs(jobID string) (string, error) {
	jobDir := filepath.Join(i.dataDir, "jobs", jobID)
	inputDir := filepath.Join(jobDir, "input")
	for _, dir := range []string{inputDir, filepath.Join(jobDir, "out")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create job directory: %w", err)
		}
	}
	return inputDir, nil
}

func (i *Ingester) enqueue(ctx context.Context, jobID, inputPath, filename string, req Request) error {
	if err := i.reg.Create(jobID, filename); err != nil {
		return err
	}

	if i.history != nil {
		rec := &storage.JobRecord{
			ID:        jobID,
			Filename:  filename,
			Model:     req.Config.Model,
			Device:    req.Config.Device,
			Precision: req.Config.Precision,
			Language:  req.Language,
		}
		if err := i.history.Record(ctx, rec); err != nil {
			log.Printf("history: record %s: %v", jobID, err)
		}
	}

	task := executor.Task{
		JobID:     jobID,
		InputPath: inputPath,
		Filename:  filename,
		OutDir:    filepath.Join(i.dataDir, "jobs", jobID, "out"),
		Config:    req.Config,
		Language:  req.Language,
	}
	if err := i.exec.Submit(task); err != nil {
		// The registry entry stays; it records why the job never ran.
		i.reg.SetMessage(jobID, err.Error())
		i.reg.SetState(jobID, models.JobStateError)
		return err
	}
	return nil
}

// OutDir returns the artifact directory for a job.
func (i *Ingester) OutDir(jobID string) string {
	return filepath.Join(i.dataDir, "jobs", jobID, "out")
}
