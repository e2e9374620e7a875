// Package youtube downloads the audio track of a video for transcription.
package youtube

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
)

// Client wraps the YouTube download client.
type Client struct {
	client ytdl.Client
}

// NewClient creates a new YouTube client.
func NewClient() *Client {
	return &Client{client: ytdl.Client{}}
}

// Audio describes a downloaded audio track.
type Audio struct {
	VideoID  string
	Title    string
	Filename string // title-derived name with the container extension
	Path     string
}

// extension maps an audio MIME type to a container extension.
func extension(mimeType string) string {
	if strings.Contains(mimeType, "mp4") {
		return ".m4a"
	}
	if strings.Contains(mimeType, "webm") {
		return ".webm"
	}
	return ".audio"
}

// DownloadAudio fetches the highest-bitrate audio-only stream of videoURL
// into destDir and returns its metadata.
func (c *Client) DownloadAudio(ctx context.Context, videoURL, destDir string) (*Audio, error) {
	video, err := c.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	var formats []ytdl.Format
	for _, f := range video.Formats {
		if strings.HasPrefix(f.MimeType, "audio/") {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no audio formats available")
	}
	sort.Slice(formats, func(i, j int) bool {
		return formats[i].Bitrate > formats[j].Bitrate
	})
	format := &formats[0]

	stream, _, err := c.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	filename := sanitizeFilename(video.Title) + extension(format.MimeType)
	path := filepath.Join(destDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, stream); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	return &Audio{
		VideoID:  video.ID,
		Title:    video.Title,
		Filename: filename,
		Path:     path,
	}, nil
}

// sanitizeFilename replaces characters that are unusable in file names.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
