package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const remoteDockerSocket = "/var/run/docker.sock"

// RestartContainer restarts a container through the Docker Engine API of the remote host,
// reached by tunneling the daemon socket over the session.
func RestartContainer(ctx context.Context, s Session, name string, stopTimeout time.Duration) error {
	t, ok := s.(Tunneler)
	if !ok {
		return errors.New("session does not support tunneling to the docker daemon")
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+remoteDockerSocket),
		client.WithDialContext(func(ctx context.Context, _, _ string) (net.Conn, error) {
			return t.DialContext(ctx, "unix", remoteDockerSocket)
		}),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("create docker client: %w", err)
	}
	defer cli.Close()

	secs := int(stopTimeout.Seconds())
	if err := cli.ContainerRestart(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("restart container %s: %w", name, err)
	}
	inspect, err := cli.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("inspect container %s: %w", name, err)
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil || !inspect.State.Running {
		return fmt.Errorf("container %s is not running after restart", name)
	}
	return nil
}
