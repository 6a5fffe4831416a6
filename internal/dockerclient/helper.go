package dockerclient

import (
	"context"
	"fmt"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// HelperMount describes one bind mount for an ephemeral helper container.
type HelperMount struct {
	Source string // host path or named volume name
	Target string
	ReadOnly bool
}

// RunHelper runs image with cmd as an ephemeral, auto-removed container
// (the same pattern the data backup service uses to tar volumes: spawn
// alpine, run one shell command, wait, collect the exit code and logs on
// failure, remove). It blocks until the container exits or timeout elapses.
func (c *Client) RunHelper(ctx context.Context, image, name string, cmd []string, mounts []HelperMount, timeout time.Duration) (exitCode int, logs string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var binds []string
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}

	created, err := c.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name: name,
		Config: &container.Config{
			Image: image,
			Cmd: cmd,
		},
		HostConfig: &container.HostConfig{
			Binds: binds,
		},
	})
	if err != nil {
		return -1, "", fmt.Errorf("create helper container: %w", err)
	}
	defer c.api.ContainerRemove(context.Background(), created.ID, client.ContainerRemoveOptions{Force: true})

	if _, err := c.api.ContainerStart(ctx, created.ID, client.ContainerStartOptions{}); err != nil {
		return -1, "", fmt.Errorf("start helper container: %w", err)
	}

	statusCh, errCh := c.api.ContainerWait(ctx, created.ID, client.ContainerWaitOptions{Condition: container.WaitConditionNotRunning})
	select {
	case err := <-errCh:
		return -1, "", fmt.Errorf("wait helper container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return -1, "", ctx.Err()
	}

	out, _ := c.Logs(context.Background(), created.ID, 500)
	return exitCode, out, nil
}
