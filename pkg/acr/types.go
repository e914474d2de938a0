// Package acr implements the Architecture Change Request workflow: proposals
// to change tracked architecture and the human decisions that accept or
// reject them.
package acr

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an ACR.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusDiscuss  Status = "DISCUSS"
)

// Terminal reports whether no further decision may be recorded.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionDiscuss Decision = "discuss"
)

// ValidDecisions lists accepted decision values.
func ValidDecisions() []Decision {
	return []Decision{DecisionApprove, DecisionReject, DecisionDiscuss}
}

// ParseDecision accepts a decision in any case.
func ParseDecision(s string) (Decision, bool) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DecisionApprove, DecisionReject, DecisionDiscuss:
		return d, true
	}
	return "", false
}

// RiskLevel is the proposer's risk estimate.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func (r RiskLevel) valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// ACR is an Architecture Change Request. ACRs are never deleted; a decision
// only moves the status forward.
type ACR struct {
	ID                 string     `json:"id"`
	Summary            string     `json:"summary"`
	Description        string     `json:"description"`
	Justification      string     `json:"justification"`
	AffectedFiles      []string   `json:"affectedFiles"`
	AffectedComponents []string   `json:"affectedComponents,omitempty"`
	RiskLevel          RiskLevel  `json:"riskLevel,omitempty"`
	Alternatives       string     `json:"alternatives,omitempty"`
	BreakingChanges    string     `json:"breakingChanges,omitempty"`
	MigrationRequired  bool       `json:"migrationRequired"`
	RelatedIssues      []string   `json:"relatedIssues,omitempty"`
	BuildID            string     `json:"buildId,omitempty"`
	SequenceID         string     `json:"sequenceId,omitempty"`
	CommitSHA          string     `json:"commitSha,omitempty"`
	Branch             string     `json:"branch,omitempty"`
	Status             Status     `json:"status"`
	ReviewedBy         string     `json:"reviewedBy,omitempty"`
	Comments           string     `json:"comments,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	DecidedAt          *time.Time `json:"decidedAt,omitempty"`
}

// Clone returns a deep copy.
func (a *ACR) Clone() *ACR {
	if a == nil {
		return nil
	}
	c := *a
	c.AffectedFiles = append([]string(nil), a.AffectedFiles...)
	c.AffectedComponents = append([]string(nil), a.AffectedComponents...)
	c.RelatedIssues = append([]string(nil), a.RelatedIssues...)
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

// CreateOptions are the proposer-supplied fields of a new ACR.
type CreateOptions struct {
	Summary            string    `json:"summary"`
	Description        string    `json:"description"`
	Justification      string    `json:"justification"`
	AffectedFiles      []string  `json:"affectedFiles"`
	AffectedComponents []string  `json:"affectedComponents,omitempty"`
	RiskLevel          RiskLevel `json:"riskLevel,omitempty"`
	Alternatives       string    `json:"alternatives,omitempty"`
	BreakingChanges    string    `json:"breakingChanges,omitempty"`
	MigrationRequired  bool      `json:"migrationRequired,omitempty"`
	RelatedIssues      []string  `json:"relatedIssues,omitempty"`
	BuildID            string    `json:"buildId,omitempty"`
	SequenceID         string    `json:"sequenceId,omitempty"`
	CommitSHA          string    `json:"commitSha,omitempty"`
	Branch             string    `json:"branch,omitempty"`
}

// ReviewOptions carry a reviewer's decision.
type ReviewOptions struct {
	ACRID      string `json:"acrId"`
	Decision   string `json:"decision"`
	ReviewedBy string `json:"reviewedBy"`
	Comments   string `json:"comments,omitempty"`
}

// Failure classifies an unsuccessful review.
type Failure string

const (
	FailureInvalidRequest  Failure = "invalid_request"
	FailureInvalidDecision Failure = "invalid_decision"
	FailureNotFound        Failure = "not_found"
	FailureTerminal        Failure = "terminal"
)

// ReviewResult is the outcome of Review. On failure Success is false, Error
// describes the problem and Failure classifies it; ACR is set when the
// request resolved to an existing ACR.
type ReviewResult struct {
	Success bool    `json:"success"`
	ACR     *ACR    `json:"acr,omitempty"`
	Error   string  `json:"error,omitempty"`
	Failure Failure `json:"failure,omitempty"`
}

// Provenance identifies the change under evaluation.
type Provenance struct {
	CommitSHA string
	Branch    string
}
