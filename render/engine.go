// Package render drives the external Manim rendering engine.
package render

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// QualityDir is the directory Manim writes into for the -ql profile.
const QualityDir = "480p15"

// Job describes one render: the script to run, the scene class inside it and
// the media directory Manim should write into.
type Job struct {
	ScriptPath string
	SceneName  string
	MediaDir   string
}

// OutputPath is where Manim leaves the finished video for job.
func OutputPath(job Job) string {
	stem := strings.TrimSuffix(filepath.Base(job.ScriptPath), filepath.Ext(job.ScriptPath))
	return filepath.Join(job.MediaDir, "videos", stem, QualityDir, job.SceneName+".mp4")
}

// Engine runs a render to completion. A non-zero exit is reported as *ExitError.
type Engine interface {
	Render(ctx context.Context, job Job) error
}

// ExitError is returned when the engine exits with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("render exited with status %d", e.Code)
}

func manimArgs(scriptPath, sceneName, mediaDir string) []string {
	return []string{scriptPath, sceneName, "-ql", "--media_dir", mediaDir}
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, job Job) error

func (f EngineFunc) Render(ctx context.Context, job Job) error {
	return f(ctx, job)
}
