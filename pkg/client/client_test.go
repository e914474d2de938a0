package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/api"
	"github.com/Mindburn-Labs/archgate/pkg/client"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

const catalog = `[
  {"id": "C-1", "type": "structural", "severity": "CRITICAL", "scope": "lib/**", "owner": "platform"},
  {"id": "C-2", "type": "naming", "severity": "LOW", "scope": "cmd/**", "owner": "tooling"},
  {"id": "C-3", "type": "structural", "severity": "SEVERE", "scope": "x/**"}
]`

func newServer(t *testing.T) (*httptest.Server, *api.Authenticator) {
	t.Helper()
	auth := api.NewAuthenticator("test-secret", "archgate")
	wf := acr.NewWorkflow(acr.NewMemoryStore())
	reg := constraints.NewRegistry(constraints.BytesSource(catalog))
	srv := httptest.NewServer(api.NewServer(wf, reg, api.WithAuthenticator(auth)).Handler())
	t.Cleanup(srv.Close)
	return srv, auth
}

func createOpts() acr.CreateOptions {
	return acr.CreateOptions{
		Summary:       "Split core",
		Description:   "Move parsing out of core",
		Justification: "Core is too large",
		AffectedFiles: []string{"lib/core/**"},
		Branch:        "feature/split",
	}
}

func TestClient_ACRLifecycle(t *testing.T) {
	srv, auth := newServer(t)
	token, err := auth.Issue("alice", []string{api.RoleReviewer}, time.Hour)
	require.NoError(t, err)
	c := client.New(srv.URL, client.WithToken(token), client.WithTimeout(5*time.Second))
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])

	created, err := c.Create(ctx, createOpts())
	require.NoError(t, err)
	assert.Equal(t, acr.StatusPending, created.Status)

	pending, err := c.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	got, err := c.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Summary, got.Summary)

	res, err := c.Review(ctx, acr.ReviewOptions{ACRID: created.ID, Decision: "approve"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, acr.StatusApproved, res.ACR.Status)
	assert.Equal(t, "alice", res.ACR.ReviewedBy)

	res, err = c.Review(ctx, acr.ReviewOptions{ACRID: created.ID, Decision: "reject"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, acr.FailureTerminal, res.Failure)
}

func TestClient_ReviewFailures(t *testing.T) {
	srv, auth := newServer(t)
	token, err := auth.Issue("bob", []string{api.RoleReviewer}, time.Hour)
	require.NoError(t, err)
	c := client.New(srv.URL, client.WithToken(token))
	ctx := context.Background()

	res, err := c.Review(ctx, acr.ReviewOptions{ACRID: "ACR-404", Decision: "approve"})
	require.NoError(t, err)
	assert.Equal(t, acr.FailureNotFound, res.Failure)

	res, err = c.Review(ctx, acr.ReviewOptions{ACRID: "ACR-404", Decision: "maybe"})
	require.NoError(t, err)
	assert.Equal(t, acr.FailureInvalidDecision, res.Failure)
	assert.Contains(t, res.Error, "maybe")
}

func TestClient_Unauthenticated(t *testing.T) {
	srv, _ := newServer(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	_, err := c.Create(ctx, createOpts())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = c.Review(ctx, acr.ReviewOptions{ACRID: "ACR-1", Decision: "approve", ReviewedBy: "x"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClient_Constraints(t *testing.T) {
	srv, _ := newServer(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	res, err := c.Query(ctx, constraints.Filter{Severity: constraints.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Constraints, 1)
	assert.Equal(t, "C-1", res.Constraints[0].ID)

	con, err := c.Constraint(ctx, "C-2")
	require.NoError(t, err)
	assert.Equal(t, "tooling", con.Owner)

	_, err = c.Constraint(ctx, "C-9")
	assert.True(t, client.IsNotFound(err))

	_, err = c.Get(ctx, "ACR-9")
	assert.True(t, client.IsNotFound(err))

	rejected, err := c.Rejected(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "C-3", rejected[0].ID)
}
