package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
)

// AdminTokenHeader carries the operator secret for admin routes.
const AdminTokenHeader = "X-Admin-Token"

// AdminDependencies defines the interface for operator actions.
type AdminDependencies interface {
	Migrate(ctx context.Context) (int, error)
}

// AdminHandler serves operator-only routes.
type AdminHandler struct {
	deps  AdminDependencies
	token string
}

// NewAdminHandler creates a new admin handler. An empty token rejects every request.
func NewAdminHandler(deps AdminDependencies, token string) *AdminHandler {
	return &AdminHandler{deps: deps, token: token}
}

type initDBResponse struct {
	OK      bool `json:"ok"`
	Applied int  `json:"applied"`
}

// HandleInitDB handles POST /admin/init-db by applying pending schema migrations.
func (h *AdminHandler) HandleInitDB(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_init_db"

	if !h.authorized(r.Header.Get(AdminTokenHeader)) {
		writeFailure(w, WrapKind(op, ErrUnauthorized, errors.New("invalid admin token")))
		return
	}
	applied, err := h.deps.Migrate(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, initDBResponse{OK: true, Applied: applied})
}

func (h *AdminHandler) authorized(got string) bool {
	if h.token == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}
