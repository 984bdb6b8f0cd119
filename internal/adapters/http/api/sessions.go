package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	service "github.com/okian/nback/internal/app"
	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/internal/domain/scoring"
)

const (
	maxBodyBytes  = 64 << 10
	anonymousName = "anonymous"
)

// SubmitDependencies defines the interface for session submission.
type SubmitDependencies interface {
	Submit(ctx context.Context, sub service.Submission) (service.SubmitResult, error)
}

// SubmitHandler handles session submissions.
type SubmitHandler struct {
	deps     SubmitDependencies
	validate *validator.Validate
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(deps SubmitDependencies) *SubmitHandler {
	return &SubmitHandler{deps: deps, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// submitRequest mirrors the OpenAPI schema for POST /sessions.
type submitRequest struct {
	Status          optionalString `json:"status"`
	Title           optionalString `json:"title"`
	Mode            optionalString `json:"mode"`
	NBack           flexNumber     `json:"nBack"`
	Modalities      flexNumber     `json:"modalities"`
	Tags            flexTags       `json:"tags"`
	TrialTimeMs     flexNumber     `json:"trialTimeMs"`
	ElapsedSeconds  flexNumber     `json:"elapsedSeconds"`
	CompletedTrials flexNumber     `json:"completedTrials"`
	MatchChance     flexNumber     `json:"matchChance"`
	AccuracyPercent flexNumber     `json:"accuracyPercent"`
	Timestamp       flexTime       `json:"timestamp"`
	// Username names anonymous submissions; ignored when a token is present.
	Username optionalString `json:"username"`
}

// bounds holds the fields checked by the validator after normalization.
// Points grow as 2^(modalities*nBack), so both factors are capped.
type bounds struct {
	Status     string   `validate:"oneof=completed cancelled tombstone"`
	Title      string   `validate:"max=200"`
	Mode       string   `validate:"max=200"`
	NBack      int      `validate:"gte=-100,lte=100"`
	Modalities int      `validate:"gte=1,lte=16"`
	Tags       []string `validate:"max=16"`
	Username   string   `validate:"max=64"`
}

type submitResponse struct {
	OK                bool    `json:"ok"`
	SessionID         string  `json:"sessionId,omitempty"`
	Points            string  `json:"points"`
	EligibleForPoints bool    `json:"eligibleForPoints"`
	Reason            *string `json:"reason"`
	Duplicate         bool    `json:"duplicate,omitempty"`
}

// HandleSubmit handles POST /sessions requests.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_session"

	var req submitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("body must be a JSON object")))
		return
	}

	sub, err := h.normalize(r.Context(), req)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	sub.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	res, err := h.deps.Submit(r.Context(), sub)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	resp := submitResponse{
		OK:                true,
		SessionID:         res.SessionID,
		Points:            res.Points.String(),
		EligibleForPoints: res.Eligible,
		Duplicate:         res.Duplicate,
	}
	if !res.Eligible {
		reason := string(res.Reason)
		resp.Reason = &reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SubmitHandler) normalize(ctx context.Context, req submitRequest) (service.Submission, error) {
	status := strings.TrimSpace(req.Status.v)
	if !req.Status.set || status == "" {
		return service.Submission{}, service.Invalid("", "Missing status")
	}
	st, ok := model.ParseStatus(status)
	if !ok {
		return service.Submission{}, service.Invalid("", "Invalid status")
	}

	who, authed := IdentityFrom(ctx)
	if !authed {
		who = model.Identity{Username: strings.TrimSpace(req.Username.v)}
		if who.Username == "" {
			who.Username = anonymousName
		}
	}

	hints := scoring.ModalityHints{
		Explicit: req.Modalities.Ptr(),
		Tags:     req.Tags,
		Title:    req.Title.v,
		Mode:     req.Mode.v,
	}
	modalities := scoring.InferModalities(hints)
	nBack := req.NBack.Int(0)
	var depth float64
	if d := req.NBack.Positive(); d != nil {
		depth = *d
	}

	if err := h.validate.Struct(bounds{
		Status:     string(st),
		Title:      req.Title.v,
		Mode:       req.Mode.v,
		NBack:      nBack,
		Modalities: modalities,
		Tags:       req.Tags,
		Username:   who.Username,
	}); err != nil {
		return service.Submission{}, boundsError(err)
	}

	var accuracy *float64
	if a := req.AccuracyPercent.Ptr(); a != nil {
		v := min(1, max(0, *a))
		accuracy = &v
	}

	return service.Submission{
		Identity: who,
		Report: model.SessionReport{
			Status:                  st,
			Title:                   req.Title.v,
			Mode:                    req.Mode.v,
			DifficultyLevel:         nBack,
			Depth:                   depth,
			TrialIntervalMs:         req.TrialTimeMs.Positive(),
			CompletedTrialCount:     req.CompletedTrials.IntPtr(),
			MatchProbabilityPercent: req.MatchChance.Ptr(),
			AccuracyFraction:        accuracy,
			ElapsedSeconds:          req.ElapsedSeconds.Positive(),
			OccurredAt:              req.Timestamp.Time(),
		},
		Hints: hints,
	}, nil
}

var jsonFieldNames = map[string]string{
	"Status":     "status",
	"Title":      "title",
	"Mode":       "mode",
	"NBack":      "nBack",
	"Modalities": "modalities",
	"Tags":       "tags",
	"Username":   "username",
}

func boundsError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return service.Invalid("", err.Error())
	}
	fe := verrs[0]
	field := jsonFieldNames[fe.Field()]
	msg := fmt.Sprintf("%s out of range (%s=%s)", field, fe.Tag(), fe.Param())
	if fe.Tag() == "oneof" {
		msg = "Invalid status"
	}
	return service.Invalid(field, msg)
}
