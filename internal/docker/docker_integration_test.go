//go:build integration

package docker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestContainerIsUp_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	name := "conduit-it-" + time.Now().Format("150405")
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "alpine:3.20",
			Name:       name,
			Cmd:        []string{"sleep", "60"},
			WaitingFor: wait.ForExec([]string{"true"}),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer testcontainers.TerminateContainer(ctr)

	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping(ctx))

	up, err := c.ContainerIsUp(ctx, name)
	require.NoError(t, err)
	assert.True(t, up)

	up, err = c.ContainerIsUp(ctx, name+"-missing")
	require.NoError(t, err)
	assert.False(t, up)
}
