// Package docker talks to the Docker engine API.
package docker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	log "github.com/sirupsen/logrus"
)

// SocketEnv overrides the engine socket path.
const SocketEnv = "DOCKER_SOCKET"

// engineAPI is the subset of the engine client used by Client.
type engineAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	Close() error
}

// Client wraps an engine connection. It is owned by the caller that created
// it and must be closed when no longer needed.
type Client struct {
	api engineAPI
}

// New connects using DOCKER_SOCKET when set, otherwise the standard docker
// environment (DOCKER_HOST, DOCKER_API_VERSION, ...).
func New() (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socket := os.Getenv(SocketEnv); socket != "" {
		if !strings.Contains(socket, "://") {
			socket = "unix://" + socket
		}
		opts = append(opts, client.WithHost(socket))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{api: cli}, nil
}

func newWithAPI(api engineAPI) *Client {
	return &Client{api: api}
}

// Ping checks that the engine is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ping, err := c.api.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker engine unreachable, is docker running?: %w", err)
	}
	log.WithField("api_version", ping.APIVersion).Debug("connected to docker engine")
	return nil
}

// ContainerIsUp reports whether a running container carries exactly name.
func (c *Client) ContainerIsUp(ctx context.Context, name string) (bool, error) {
	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, ctr := range containers {
		for _, n := range ctr.Names {
			if n == "/"+name {
				return true, nil
			}
		}
	}
	return false, nil
}

// ListVolumes returns the names of volumes whose name contains nameFilter.
func (c *Client) ListVolumes(ctx context.Context, nameFilter string) ([]string, error) {
	resp, err := c.api.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", nameFilter)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	names := make([]string, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v != nil {
			names = append(names, v.Name)
		}
	}
	return names, nil
}

// RemoveVolume deletes the named volume.
func (c *Client) RemoveVolume(ctx context.Context, name string) error {
	if err := c.api.VolumeRemove(ctx, name, false); err != nil {
		return fmt.Errorf("failed to remove volume %s: %w", name, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.api.Close()
}
