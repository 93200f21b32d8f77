package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// ManimEngine runs the manim CLI as a local subprocess.
type ManimEngine struct {
	Binary string
	Logger *zap.Logger
}

// NewManimEngine uses binary, or "manim" from PATH when empty.
func NewManimEngine(binary string, logger *zap.Logger) *ManimEngine {
	if binary == "" {
		binary = "manim"
	}
	return &ManimEngine{Binary: binary, Logger: logger}
}

func (m *ManimEngine) Render(ctx context.Context, job Job) error {
	cmd := exec.CommandContext(ctx, m.Binary, manimArgs(job.ScriptPath, job.SceneName, job.MediaDir)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	m.Logger.Debug("manim finished",
		zap.String("script", job.ScriptPath),
		zap.String("stdout", stdout.String()),
	)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("start %s: %w", m.Binary, err)
	}
	return nil
}
