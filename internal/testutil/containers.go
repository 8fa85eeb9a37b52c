// Package testutil starts the backing services the integration and e2e tests
// run against: pgvector for the durable vector store and RustFS as an
// S3-compatible content bucket.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/database"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	postgresPort nat.Port = "5432/tcp"
	rustfsPort   nat.Port = "9000/tcp"

	pgCredential     = "helpdesk"
	rustfsCredential = "rustfsadmin"
)

// startContainer runs req and resolves the host address of port.
func startContainer(ctx context.Context, t *testing.T, name string, req testcontainers.ContainerRequest, port nat.Port) (testcontainers.Container, string, string) {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s container: %v", name, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		t.Fatalf("failed to get %s host: %v", name, err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		t.Fatalf("failed to get %s port: %v", name, err)
	}
	return c, host, mapped.Port()
}

// PostgresContainer is a pgvector-enabled Postgres.
type PostgresContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	c, host, port := startContainer(ctx, t, "postgres", testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{string(postgresPort)},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		// The entrypoint restarts the server once after init, hence two occurrences.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		).WithStartupTimeout(60 * time.Second),
	}, postgresPort)

	return &PostgresContainer{Container: c, Host: host, Port: port}
}

// ConnectionString is suitable for HELPDESK_DATABASE_URL.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pgCredential, pgCredential, pc.Host, pc.Port, pgCredential)
}

func (pc *PostgresContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(pc.Container)
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	AccessKey string
	SecretKey string
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	c, host, port := startContainer(ctx, t, "rustfs", testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{string(rustfsPort)},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": rustfsCredential,
			"RUSTFS_SECRET_KEY": rustfsCredential,
		},
		WaitingFor: wait.ForListeningPort(rustfsPort).WithStartupTimeout(30 * time.Second),
	}, rustfsPort)

	return &RustFSContainer{
		Container: c,
		Host:      host,
		Port:      port,
		AccessKey: rustfsCredential,
		SecretKey: rustfsCredential,
	}
}

// Endpoint is the path-style S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

func (rc *RustFSContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(rc.Container)
}

// NewTestPool migrates the container's database and returns a pool on it.
// Connection attempts are retried while the server finishes starting.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer) *pgxpool.Pool {
	t.Helper()

	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		if err = database.MigratePostgres(pc.ConnectionString(), zap.NewNop()); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:             pc.ConnectionString(),
		ApplicationName: "helpdesk-test",
		ConnectTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	return pool
}

// ChunkCount returns the stored chunks for documentID, or all chunks when it
// is empty.
func ChunkCount(ctx context.Context, pool *pgxpool.Pool, documentID string) (int, error) {
	var n int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM knowledge_chunks WHERE $1 = '' OR document_id = $1`,
		documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// TruncateAll empties the vector store tables.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE knowledge_chunks`); err != nil {
		return fmt.Errorf("failed to truncate knowledge_chunks: %w", err)
	}
	return nil
}
