package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// containerWorkDir is where the scratch root is mounted inside the container.
const containerWorkDir = "/manim"

// DockerEngine runs manim inside a container with the scratch root
// bind-mounted, for hosts that do not have Manim and its LaTeX stack installed.
// The container runs as the calling user so the host can move and remove what
// manim writes.
type DockerEngine struct {
	cli     *client.Client
	image   string
	hostDir string
	user    string
	logger  *zap.Logger
}

// NewDockerEngine connects to the daemon from the environment (DOCKER_HOST etc).
// hostDir is the scratch root; every job path must live under it.
func NewDockerEngine(image, hostDir string, logger *zap.Logger) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	return newDockerEngine(cli, image, hostDir, logger)
}

func newDockerEngine(cli *client.Client, image, hostDir string, logger *zap.Logger) (*DockerEngine, error) {
	abs, err := filepath.Abs(hostDir)
	if err != nil {
		return nil, err
	}
	return &DockerEngine{cli: cli, image: image, hostDir: abs, user: hostUser(), logger: logger}, nil
}

// hostUser is the uid:gid of this process, or empty where ids do not apply.
func hostUser() string {
	uid, gid := os.Getuid(), os.Getgid()
	if uid < 0 || gid < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}

func (d *DockerEngine) Render(ctx context.Context, job Job) error {
	script, err := d.containerPath(job.ScriptPath)
	if err != nil {
		return err
	}
	media, err := d.containerPath(job.MediaDir)
	if err != nil {
		return err
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      d.image,
			Entrypoint: []string{"manim"},
			Cmd:        manimArgs(script, job.SceneName, media),
			WorkingDir: containerWorkDir,
			User:       d.user,
		},
		&container.HostConfig{
			Binds: []string{d.hostDir + ":" + containerWorkDir},
		},
		nil, nil, "",
	)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	containerID := resp.ID

	defer func() {
		// the caller's context may already be done; removal must still happen
		if err := d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Warn("remove container", zap.String("container_id", containerID), zap.Error(err))
		}
	}()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	out, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return fmt.Errorf("fetch container logs: %w", err)
	}
	defer out.Close()

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	if _, err := stdcopy.StdCopy(stdout, stderr, out); err != nil {
		return fmt.Errorf("copy container logs: %w", err)
	}
	d.logger.Debug("manim container finished",
		zap.String("container_id", containerID),
		zap.Int64("exit_code", exitCode),
		zap.String("stdout", stdout.String()),
	)

	if exitCode != 0 {
		return &ExitError{Code: int(exitCode), Stderr: stderr.String()}
	}
	return nil
}

// containerPath maps a host path under the scratch root to its mount location.
func (d *DockerEngine) containerPath(hostPath string) (string, error) {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(d.hostDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the scratch root", filepath.Base(hostPath))
	}
	return filepath.ToSlash(filepath.Join(containerWorkDir, rel)), nil
}
