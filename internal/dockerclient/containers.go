package dockerclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// ListRunningContainers returns all currently running containers.
func (c *Client) ListRunningContainers(ctx context.Context) ([]container.Summary, error) {
	opts := client.ContainerListOptions{Filters: make(client.Filters).Add("status", "running")}
	result, err := c.api.ContainerList(ctx, opts)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// ListAllContainers returns every container regardless of state.
func (c *Client) ListAllContainers(ctx context.Context) ([]container.Summary, error) {
	result, err := c.api.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Inspect returns full container details by ID or name.
func (c *Client) Inspect(ctx context.Context, id string) (container.InspectResponse, error) {
	result, err := c.api.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		return container.InspectResponse{}, err
	}
	return result.Container, nil
}

// Stop stops a running container with the given timeout in seconds.
func (c *Client) Stop(ctx context.Context, id string, timeoutSeconds int) error {
	_, err := c.api.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &timeoutSeconds})
	return err
}

// Start starts a stopped container.
func (c *Client) Start(ctx context.Context, id string) error {
	_, err := c.api.ContainerStart(ctx, id, client.ContainerStartOptions{})
	return err
}

// Remove removes a container, optionally along with its anonymous volumes.
func (c *Client) Remove(ctx context.Context, id string, withVolumes bool) error {
	_, err := c.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true, RemoveVolumes: withVolumes})
	return err
}

// ImageDigest returns the repo digest of a locally available image, falling
// back to the image ID when no repo digest is recorded (e.g. locally built
// images never pulled from a registry).
func (c *Client) ImageDigest(ctx context.Context, imageRef string) (string, error) {
	resp, err := c.api.ImageInspect(ctx, imageRef)
	if err != nil {
		return "", err
	}
	if len(resp.RepoDigests) > 0 {
		return resp.RepoDigests[0], nil
	}
	return resp.ID, nil
}

// Exec runs a command inside a running container and returns its exit code
// and combined stdout/stderr. A timeout of 0 means no deadline beyond ctx.
func (c *Client) Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (int, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	created, err := c.api.ExecCreate(ctx, id, client.ExecCreateOptions{
		Cmd: cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, "", fmt.Errorf("exec create: %w", err)
	}

	attached, err := c.api.ExecAttach(ctx, created.ID, client.ExecAttachOptions{})
	if err != nil {
		return -1, "", fmt.Errorf("exec attach: %w", err)
	}
	defer attached.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attached.Reader); err != nil {
		return -1, "", fmt.Errorf("exec read: %w", err)
	}
	if stderr.Len() > 0 {
		stdout.WriteString(stderr.String())
	}

	inspected, err := c.api.ExecInspect(ctx, created.ID, client.ExecInspectOptions{})
	if err != nil {
		return -1, stdout.String(), fmt.Errorf("exec inspect: %w", err)
	}
	return inspected.ExitCode, stdout.String(), nil
}

// ExecWithStdin runs a command inside a container, feeding stdin from r,
// and returns its exit code and combined stdout/stderr. Used to write small
// files (e.g. a database dump) into a container without a tar-archive API
// round trip.
func (c *Client) ExecWithStdin(ctx context.Context, id string, cmd []string, r io.Reader, timeout time.Duration) (int, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	created, err := c.api.ExecCreate(ctx, id, client.ExecCreateOptions{
		Cmd: cmd,
		AttachStdin: true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, "", fmt.Errorf("exec create: %w", err)
	}

	attached, err := c.api.ExecAttach(ctx, created.ID, client.ExecAttachOptions{})
	if err != nil {
		return -1, "", fmt.Errorf("exec attach: %w", err)
	}
	defer attached.Close()

	go func() {
		io.Copy(attached.Conn, r)
		attached.CloseWrite()
	}()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attached.Reader); err != nil {
		return -1, "", fmt.Errorf("exec read: %w", err)
	}
	if stderr.Len() > 0 {
		stdout.WriteString(stderr.String())
	}

	inspected, err := c.api.ExecInspect(ctx, created.ID, client.ExecInspectOptions{})
	if err != nil {
		return -1, stdout.String(), fmt.Errorf("exec inspect: %w", err)
	}
	return inspected.ExitCode, stdout.String(), nil
}

// Logs returns the last `lines` lines of a container's output, used as a
// restart-failure diagnostic.
func (c *Client) Logs(ctx context.Context, id string, lines int) (string, error) {
	opts := client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: fmt.Sprintf("%d", lines)}
	reader, err := c.api.ContainerLogs(ctx, id, opts)
	if err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", fmt.Errorf("read container logs: %w", err)
	}
	if stderr.Len() > 0 {
		stdout.WriteString(stderr.String())
	}
	return stdout.String(), nil
}
