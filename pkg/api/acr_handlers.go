package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
)

// PendingResponse is the body of GET /v1/acrs/pending.
type PendingResponse struct {
	ACRs  []*acr.ACR `json:"acrs"`
	Count int        `json:"count"`
}

// ReviewResponse is the body of a successful review.
type ReviewResponse struct {
	ACR *acr.ACR `json:"acr"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	acrs, err := s.acrs.ListPending(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if acrs == nil {
		acrs = []*acr.ACR{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{ACRs: acrs, Count: len(acrs)})
}

func (s *Server) handleGetACR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.acrs.Get(r.Context(), id)
	if errors.Is(err, acr.ErrACRNotFound) {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "acr "+id+" not found")
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateACR(w http.ResponseWriter, r *http.Request) {
	var opts acr.CreateOptions
	if !decode(w, r, &opts) {
		return
	}
	if err := opts.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	a, err := s.acrs.Create(r.Context(), opts)
	if err != nil {
		var ve *acr.ValidationError
		if errors.As(err, &ve) {
			writeValidationError(w, err)
			return
		}
		WriteInternal(w, err)
		return
	}
	w.Header().Set("Location", "/v1/acrs/"+a.ID)
	writeJSON(w, http.StatusCreated, a)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve *acr.ValidationError
	if errors.As(err, &ve) {
		WriteValidation(w, ve.Field, ve.Error())
		return
	}
	WriteBadRequest(w, err.Error())
}

func (s *Server) handleReviewACR(w http.ResponseWriter, r *http.Request) {
	var opts acr.ReviewOptions
	if !decode(w, r, &opts) {
		return
	}
	if _, ok := acr.ParseDecision(opts.Decision); !ok {
		WriteValidation(w, "decision", acr.InvalidDecisionMessage(opts.Decision))
		return
	}
	if strings.TrimSpace(opts.ACRID) == "" {
		WriteValidation(w, "acrId", "acrId is required")
		return
	}

	if claims, ok := ClaimsFrom(r.Context()); ok {
		if !claims.HasRole(RoleReviewer) {
			WriteForbidden(w, "token lacks the reviewer role")
			return
		}
		switch {
		case strings.TrimSpace(opts.ReviewedBy) == "":
			opts.ReviewedBy = claims.Subject
		case opts.ReviewedBy != claims.Subject:
			WriteForbidden(w, "reviewedBy must match the authenticated subject")
			return
		}
	}
	if strings.TrimSpace(opts.ReviewedBy) == "" {
		WriteValidation(w, "reviewedBy", "reviewedBy is required")
		return
	}

	res, err := s.acrs.Review(r.Context(), opts)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if !res.Success {
		switch res.Failure {
		case acr.FailureNotFound:
			WriteErrorR(w, r, http.StatusNotFound, "Not Found", "acr "+opts.ACRID+" not found")
		case acr.FailureTerminal:
			WriteConflict(w, res.Error)
		default:
			WriteBadRequest(w, res.Error)
		}
		return
	}
	s.logger.InfoContext(r.Context(), "acr decision recorded",
		"id", res.ACR.ID, "status", res.ACR.Status, "reviewer", res.ACR.ReviewedBy,
		"request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusOK, ReviewResponse{ACR: res.ACR})
}
