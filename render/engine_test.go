package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOutputPath(t *testing.T) {
	job := Job{
		ScriptPath: filepath.Join("scratch", "abc.py"),
		SceneName:  "GeneratedScene",
		MediaDir:   filepath.Join("scratch", "abc"),
	}
	assert.Equal(t,
		filepath.Join("scratch", "abc", "videos", "abc", "480p15", "GeneratedScene.mp4"),
		OutputPath(job))
}

func fakeBinary(t *testing.T, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)
	return path
}

func TestManimEngineSuccess(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		ScriptPath: filepath.Join(dir, "abc.py"),
		SceneName:  "GeneratedScene",
		MediaDir:   filepath.Join(dir, "abc"),
	}
	require.NoError(t, os.WriteFile(job.ScriptPath, []byte("from manim import *"), 0o644))

	engine := NewManimEngine(fakeBinary(t, "fake_manim.sh"), zap.NewNop())
	require.NoError(t, engine.Render(context.Background(), job))

	_, err := os.Stat(OutputPath(job))
	assert.NoError(t, err)
}

func TestManimEngineNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		ScriptPath: filepath.Join(dir, "abc.py"),
		SceneName:  "GeneratedScene",
		MediaDir:   filepath.Join(dir, "abc"),
	}

	engine := NewManimEngine(fakeBinary(t, "failing_manim.sh"), zap.NewNop())
	err := engine.Render(context.Background(), job)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "NameError")
}

func TestManimEngineMissingBinary(t *testing.T) {
	engine := NewManimEngine(filepath.Join(t.TempDir(), "no-such-manim"), zap.NewNop())
	err := engine.Render(context.Background(), Job{ScriptPath: "x.py", SceneName: "S", MediaDir: "x"})

	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestDockerContainerPath(t *testing.T) {
	root := t.TempDir()
	d := &DockerEngine{hostDir: root, logger: zap.NewNop()}

	got, err := d.containerPath(filepath.Join(root, "abc.py"))
	require.NoError(t, err)
	assert.Equal(t, "/manim/abc.py", got)

	got, err = d.containerPath(filepath.Join(root, "abc"))
	require.NoError(t, err)
	assert.Equal(t, "/manim/abc", got)

	_, err = d.containerPath(filepath.Join(filepath.Dir(root), "elsewhere.py"))
	assert.Error(t, err)
}
