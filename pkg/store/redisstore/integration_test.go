//go:build integration

package redisstore

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestStore_Integration_RoundTrip(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	s := New(client, "it:")

	err := s.PutVolume(ctx,
		volume.Info{VolumeID: "uc2.ark:/13960/t1", PageCount: 2, Copyright: volume.InCopyright},
		map[string][]byte{"00000001": []byte("first"), "00000002": []byte("second")},
		map[string][]byte{"mets.xml": []byte("<mets/>")})
	if err != nil {
		t.Fatalf("PutVolume failed: %v", err)
	}

	info, err := s.VolumeInfo(ctx, "uc2.ark:/13960/t1")
	if err != nil {
		t.Fatalf("VolumeInfo failed: %v", err)
	}
	if info.PageCount != 2 || info.Copyright != volume.InCopyright {
		t.Errorf("VolumeInfo = %+v", info)
	}

	cols, err := s.Columns(ctx, "uc2.ark:/13960/t1", store.FamilyPages, []string{"00000002", "00000001"})
	if err != nil {
		t.Fatalf("Columns failed: %v", err)
	}
	if string(cols[0].Value) != "second" || string(cols[1].Value) != "first" {
		t.Errorf("Columns out of order: %q, %q", cols[0].Value, cols[1].Value)
	}

	_, err = s.Columns(ctx, "uc2.ark:/13960/t1", store.FamilyMetadata, []string{"missing.xml"})
	if !errors.Is(err, store.ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}
