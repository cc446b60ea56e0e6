//go:build integration

package api

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/database"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "integracoes_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/integracoes_test?sslmode=disable", host, port.Port())

	if err := database.MigrateUp(ctx, dsn); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	testDB, err = database.NewPool(ctx, database.DefaultPoolConfig(dsn, 5))
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

func TestIntegration_EventLifecycle(t *testing.T) {
	exerciseHub(t, newHub(t, repository.NewPostgresStore(testDB), testDB, 0))
}

func TestIntegration_ReadyPingsDatabase(t *testing.T) {
	h := newHub(t, repository.NewPostgresStore(testDB), testDB, 0)

	resp, _ := h.call(t, "GET", "/ready", "")
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}
