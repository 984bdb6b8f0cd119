package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/nback/internal/adapters/identity"
	"github.com/okian/nback/internal/adapters/repository"
	service "github.com/okian/nback/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// retryAfterSeconds is advertised when the session log is unreachable.
const retryAfterSeconds = 5

const schemaDriftHint = "Database schema is out of date. Run POST /admin/init-db (with X-Admin-Token) to add required columns, then retry."

// Kind is an error tagged with the operation that raised it and a sentinel kind.
type Kind struct {
	Op   string
	Kind error
	Err  error
}

func (k *Kind) Error() string {
	switch {
	case k.Kind != nil && k.Err != nil:
		return fmt.Sprintf("%s: %v: %v", k.Op, k.Kind, k.Err)
	case k.Kind != nil:
		return fmt.Sprintf("%s: %v", k.Op, k.Kind)
	case k.Err != nil:
		return fmt.Sprintf("%s: %v", k.Op, k.Err)
	}
	return k.Op
}

func (k *Kind) Unwrap() []error {
	var out []error
	if k.Kind != nil {
		out = append(out, k.Kind)
	}
	if k.Err != nil {
		out = append(out, k.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Kind{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Kind{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op only.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Kind{Op: op, Err: err}
}

// classify maps an error to an HTTP status and machine-readable code.
func classify(err error) (int, string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, service.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrExpiredToken),
		errors.Is(err, identity.ErrNoSecret):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrSubmitInProgress):
		return http.StatusConflict, "in_progress"
	case repository.IsSchemaDrift(err):
		return http.StatusInternalServerError, "schema_out_of_date"
	case repository.IsUnavailable(err), errors.Is(err, service.ErrNotStarted), errors.Is(err, repository.ErrClosed):
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// publicMessage is what a client sees for err. Internal failures are not echoed.
func publicMessage(status int, code string, err error) string {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case code == "schema_out_of_date":
		return schemaDriftHint
	case code == "store_unavailable":
		return "session store unavailable, retry later"
	case status >= http.StatusInternalServerError:
		return http.StatusText(status)
	case err != nil:
		return cause(err).Error()
	}
	return http.StatusText(status)
}

// cause strips Kind wrappers so clients see the underlying message without op names.
func cause(err error) error {
	for {
		var k *Kind
		if !errors.As(err, &k) {
			return err
		}
		switch {
		case k.Err != nil:
			err = k.Err
		case k.Kind != nil:
			return k.Kind
		default:
			return err
		}
	}
}

// writeFailure classifies err and writes the matching error response.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: publicMessage(status, code, err)})
}
