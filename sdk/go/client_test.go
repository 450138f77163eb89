package santasdk_test

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretsanta/internal/app"
	"secretsanta/internal/config"
	"secretsanta/internal/db"
	"secretsanta/internal/migrate"
	"secretsanta/internal/repo"
	"secretsanta/internal/server"
	santasdk "secretsanta/sdk/go"
)

func newClient(t *testing.T) *santasdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	r := &repo.Repo{DB: conn}
	cfg := config.Default()
	handler, err := server.New(server.Config{
		NewService: func() app.Service {
			svc := app.New(cfg, r, nil)
			svc.Engine.Rand = rand.New(rand.NewSource(17))
			return svc
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return santasdk.New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	require.NoError(t, c.Health(ctx))

	resp, err := c.CreateAssignments(ctx, santasdk.AssignRequest{
		Participants: []santasdk.Participant{
			{Name: "Ann", Email: "a@x"},
			{Name: "Bob", Email: "b@x"},
			{Name: "Cid", Email: "c@x"},
		},
		Record: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Assignments, 3)
	require.NotEmpty(t, resp.RunID)

	runs, err := c.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].ParticipantCount)

	detail, err := c.Run(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.Assignments, detail.Assignments)
}

func TestClientAPIError(t *testing.T) {
	c := newClient(t)
	_, err := c.Run(context.Background(), "missing")
	var apiErr *santasdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = c.CreateAssignments(context.Background(), santasdk.AssignRequest{
		Participants: []santasdk.Participant{{Name: "Ann", Email: "a@x"}, {Name: "Bob", Email: "b@x"}},
	})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
