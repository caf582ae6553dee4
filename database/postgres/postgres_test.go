package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	c := Configs{
		Host:     "db",
		Port:     "5432",
		Username: "lease",
		Password: "secret",
		Database: "locks",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://lease:secret@db:5432/locks?sslmode=disable", c.dsn())

	c.DSN = "postgres://other/db"
	assert.Equal(t, "postgres://other/db", c.dsn())
}

func TestNewPostgresConnectionBadDSN(t *testing.T) {
	_, err := NewPostgresConnection(context.Background(), Configs{DSN: "postgres://lease@localhost:badport/locks"})
	assert.Error(t, err)
}

func TestNewPostgresConnection(t *testing.T) {
	dsn := os.Getenv("LEASELOCK_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEASELOCK_POSTGRES_DSN is not set")
	}
	conn, err := NewPostgresConnection(context.Background(), Configs{DSN: dsn, MaxOpenedConnections: 4, ApplicationName: "lease-lock-test"})
	require.NoError(t, err)
	defer conn.Stop()
	require.NoError(t, conn.Pool().Ping(context.Background()))
}
