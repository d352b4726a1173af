package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/logsweep/internal/archive"
)

func setupMinio(t *testing.T) archive.Config {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	return archive.Config{
		Endpoint:  host + ":" + port.Port(),
		Bucket:    "logsweep-test",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}
}

func TestMinioArchive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	cfg := setupMinio(t)
	ctx := context.Background()

	a, err := archive.New(ctx, cfg)
	require.NoError(t, err)

	// A second client on an existing bucket must not fail.
	_, err = archive.New(ctx, cfg)
	require.NoError(t, err)

	runID := uuid.New()
	require.NoError(t, a.PutWindow(ctx, runID, 2, "condensed v1", "analysis v1"))
	require.NoError(t, a.PutWindow(ctx, runID, 2, "condensed v2", "analysis v2"))

	got, err := a.Get(ctx, archive.CondensedKey(runID, 2))
	require.NoError(t, err)
	assert.Equal(t, "condensed v2", got)

	got, err = a.Get(ctx, archive.AnalysisKey(runID, 2))
	require.NoError(t, err)
	assert.Equal(t, "analysis v2", got)
}

func TestKeys(t *testing.T) {
	runID := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	assert.Equal(t, "runs/44444444-4444-4444-4444-444444444444/windows/5/condensed.txt", archive.CondensedKey(runID, 5))
	assert.Equal(t, "runs/44444444-4444-4444-4444-444444444444/windows/5/analysis.md", archive.AnalysisKey(runID, 5))
}

func TestNop(t *testing.T) {
	assert.NoError(t, archive.Nop{}.PutWindow(context.Background(), uuid.New(), 0, "x", "y"))
}
