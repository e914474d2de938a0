package acr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCovers(t *testing.T) {
	a := &ACR{
		ID:                 "ACR-1",
		AffectedFiles:      []string{"lib/core.x", "./api/**/*.proto"},
		AffectedComponents: []string{"core"},
	}

	assert.True(t, a.Covers("lib/core.x"))
	assert.True(t, a.Covers("./lib/core.x"))
	assert.False(t, a.Covers("lib/core.y"))
	assert.True(t, a.Covers("api/v1/svc.proto"))
	assert.True(t, a.Covers("component:core"))
	assert.False(t, a.Covers("component:api"))
	assert.False(t, a.Covers("component:lib/core.x"))
}

func TestMatchesProvenance(t *testing.T) {
	byCommit := &ACR{CommitSHA: "abc123", Branch: "feature/a"}
	assert.True(t, byCommit.MatchesProvenance(Provenance{CommitSHA: "ABC123"}))
	assert.False(t, byCommit.MatchesProvenance(Provenance{CommitSHA: "def", Branch: "feature/a"}))
	assert.False(t, byCommit.MatchesProvenance(Provenance{Branch: "feature/a"}))

	byBranch := &ACR{Branch: "main"}
	assert.True(t, byBranch.MatchesProvenance(Provenance{CommitSHA: "x", Branch: "main"}))
	assert.False(t, byBranch.MatchesProvenance(Provenance{Branch: "dev"}))

	assert.False(t, (&ACR{}).MatchesProvenance(Provenance{CommitSHA: "x", Branch: "main"}))
}

func TestCovering(t *testing.T) {
	acrs := []*ACR{
		{ID: "ACR-1", AffectedFiles: []string{"lib/**"}},
		{ID: "ACR-2", AffectedFiles: []string{"docs/a.md"}},
		{ID: "ACR-3", AffectedFiles: []string{"lib/core.x"}},
	}
	assert.Equal(t, []string{"ACR-1", "ACR-3"}, Covering(acrs, "lib/core.x"))
	assert.Nil(t, Covering(acrs, "cmd/main.x"))
}

func TestTransition(t *testing.T) {
	cases := []struct {
		from Status
		d    Decision
		want Status
		err  bool
	}{
		{StatusPending, DecisionApprove, StatusApproved, false},
		{StatusPending, DecisionReject, StatusRejected, false},
		{StatusPending, DecisionDiscuss, StatusDiscuss, false},
		{StatusDiscuss, DecisionDiscuss, StatusDiscuss, false},
		{StatusDiscuss, DecisionApprove, StatusApproved, false},
		{StatusApproved, DecisionReject, StatusApproved, true},
		{StatusRejected, DecisionDiscuss, StatusRejected, true},
	}
	for _, tc := range cases {
		got, err := transition(t.Context(), tc.from, tc.d)
		assert.Equal(t, tc.want, got, "%s --%s-->", tc.from, tc.d)
		assert.Equal(t, tc.err, err != nil, "%s --%s-->", tc.from, tc.d)
	}
}
