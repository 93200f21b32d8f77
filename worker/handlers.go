package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/drewmudry/visium-api/models"
	"github.com/drewmudry/visium-api/processing"
	"github.com/drewmudry/visium-api/render"
	"go.uber.org/zap"
)

// ExcerptLen bounds how much engine diagnostic output ends up in a task message.
const ExcerptLen = 200

var (
	errMissingArtifact = errors.New("renderer reported success but did not produce the expected output file")
	errRenderBackend   = errors.New("rendering backend error")
)

// HandleVideo generates the script for prompt and renders it.
func (p *Processor) HandleVideo(ctx context.Context, id, prompt string) {
	p.setStatus(id, models.StatusPending, "Generating animation code.", nil)

	script, err := p.Generator.Generate(ctx, prompt)
	if err != nil {
		p.Logger.Warn("generation failed", zap.String("task_id", id), zap.Error(err))
		p.setStatus(id, models.StatusFailed, "Failed to generate animation code from the AI model.", nil)
		return
	}

	p.HandleRender(ctx, id, script)
}

// HandleRender renders script for task id and records the outcome. Scratch
// files for the task are removed on every exit path.
func (p *Processor) HandleRender(ctx context.Context, id, script string) {
	p.setStatus(id, models.StatusRendering, "Video rendering in progress.", nil)

	job := render.Job{
		ScriptPath: filepath.Join(p.cfg.ScratchDir, id+".py"),
		SceneName:  processing.SceneName,
		MediaDir:   filepath.Join(p.cfg.ScratchDir, id),
	}
	defer p.cleanup(id, job)

	url, err := p.render(ctx, id, script, job)
	if err != nil {
		p.Logger.Warn("render failed", zap.String("task_id", id), zap.Error(err))
		p.setStatus(id, models.StatusFailed, failureMessage(err), nil)
		return
	}
	p.setStatus(id, models.StatusCompleted, "Video rendering finished successfully.", &url)
}

func (p *Processor) render(ctx context.Context, id, script string, job render.Job) (string, error) {
	if err := os.WriteFile(job.ScriptPath, []byte(script), 0o644); err != nil {
		return "", err
	}

	if err := p.Engine.Render(ctx, job); err != nil {
		var exitErr *render.ExitError
		var pathErr *fs.PathError
		if errors.As(err, &exitErr) || errors.As(err, &pathErr) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", errRenderBackend, err)
	}

	output := render.OutputPath(job)
	if _, err := os.Stat(output); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errMissingArtifact
		}
		return "", err
	}

	name := id + ".mp4"
	if err := moveFile(output, filepath.Join(p.cfg.VideoDir, name)); err != nil {
		return "", err
	}
	return p.cfg.VideoURLPrefix + "/" + name, nil
}

func (p *Processor) cleanup(id string, job render.Job) {
	if err := os.Remove(job.ScriptPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.Logger.Warn("remove scratch script", zap.String("task_id", id), zap.Error(err))
	}
	if err := os.RemoveAll(job.MediaDir); err != nil {
		p.Logger.Warn("remove scratch media", zap.String("task_id", id), zap.Error(err))
	}
}

func failureMessage(err error) string {
	var exitErr *render.ExitError
	if errors.As(err, &exitErr) {
		return "Manim rendering failed: " + Excerpt(exitErr.Stderr, ExcerptLen)
	}
	return "An unexpected error occurred: " + describe(err)
}

// describe gives a short account of err without exposing host paths. Only
// errors whose text is known to be path-free are passed through.
func describe(err error) string {
	switch {
	case errors.Is(err, errMissingArtifact):
		return err.Error()
	case errors.Is(err, errRenderBackend):
		return errRenderBackend.Error()
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Sprintf("%s %s: %v", pathErr.Op, filepath.Base(pathErr.Path), pathErr.Err)
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return fmt.Sprintf("%s %s: %v", linkErr.Op, filepath.Base(linkErr.Old), linkErr.Err)
	}
	return "internal error"
}

// Excerpt returns at most n runes of s, marking the cut with "...".
func Excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
