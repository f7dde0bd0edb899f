package api

import (
	"net/http"
	"time"

	"github.com/skarvik/accountd/pkg/api/store"
)

// protectBuiltin rejects modification of reserved accounts. The seeded
// admin (and any future reserved id below 1) is managed through
// configuration, not the API.
func protectBuiltin(id int) error {
	if id < 1 {
		return clientErr(errMethodNotAllowed,
			"built-in accounts cannot be modified")
	}

	return nil
}

// reverifyAdmin re-proves the acting admin's own password. Privileged
// operations require it even on an authenticated session, so a stolen
// bearer key alone cannot reset credentials or impersonate.
func (s *server) reverifyAdmin(
	r *http.Request, password string,
) error {
	perms := permissionsFromContext(r.Context())

	admin, err := s.store.GetUserByID(r.Context(), perms.UserID)
	if err != nil {
		return err
	}

	if admin.PasswordHash == nil {
		return clientErr(errForbidden, "account is deactivated")
	}

	ok, err := s.gate.Verify(r.Context(), *admin.PasswordHash, password)
	if err != nil {
		return err
	}

	if !ok {
		return clientErr(errBadLogin, "admin password is incorrect")
	}

	return nil
}

// --- User management ---

// handleAdminListUsers returns users matching the query filters.
func (s *server) handleAdminListUsers(
	w http.ResponseWriter, r *http.Request,
) {
	filter, err := parseUserFilter(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	users, err := s.store.ListUsers(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, users)
}

type adminCreateUserRequest struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	Locked   bool   `json:"locked"`
}

// handleAdminCreateUser creates a user without credentials. The account
// stays deactivated until a password is set through the reset endpoint.
func (s *server) handleAdminCreateUser(
	w http.ResponseWriter, r *http.Request,
) {
	var req adminCreateUserRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, err)

		return
	}

	if req.Username == "" {
		s.writeError(w, clientErr(errBadRequest, "username is required"))

		return
	}

	user := &store.User{
		Username: req.Username,
		Admin:    req.Admin,
		Locked:   req.Locked,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleAdminGetUser returns a single user by id.
func (s *server) handleAdminGetUser(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	user, err := s.store.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, user)
}

type adminUpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Admin    *bool   `json:"admin,omitempty"`
	Locked   *bool   `json:"locked,omitempty"`
}

// handleAdminUpdateUser updates a user's username, admin flag, or lock
// state.
func (s *server) handleAdminUpdateUser(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := protectBuiltin(id); err != nil {
		s.writeError(w, err)

		return
	}

	var req adminUpdateUserRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, err)

		return
	}

	user, err := s.store.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if req.Username != nil {
		if *req.Username == "" {
			s.writeError(w,
				clientErr(errBadRequest, "username must not be empty"))

			return
		}

		user.Username = *req.Username
	}

	if req.Admin != nil {
		user.Admin = *req.Admin
	}

	if req.Locked != nil {
		user.Locked = *req.Locked
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleAdminDeleteUser deletes a user and revokes all their sessions.
func (s *server) handleAdminDeleteUser(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := protectBuiltin(id); err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.sessions.RevokeAll(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Credential management ---

type adminResetPasswordRequest struct {
	AdminPassword string `json:"admin_password"`
	NewPassword   string `json:"new_password"`
	ClearSessions bool   `json:"clear_sessions"`
}

// handleAdminResetPassword sets a new password on the target account
// after re-verifying the acting admin's own password.
func (s *server) handleAdminResetPassword(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	var req adminResetPasswordRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, err)

		return
	}

	if req.NewPassword == "" {
		s.writeError(w,
			clientErr(errBadPassword, "new password must not be empty"))

		return
	}

	if err := s.reverifyAdmin(r, req.AdminPassword); err != nil {
		s.writeError(w, err)

		return
	}

	if _, err := s.store.GetUserByID(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	hash, err := s.gate.Hash(r.Context(), req.NewPassword)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.store.SetPasswordHash(r.Context(), id, &hash); err != nil {
		s.writeError(w, err)

		return
	}

	if req.ClearSessions {
		if err := s.sessions.RevokeAll(r.Context(), id); err != nil {
			s.writeError(w, err)

			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAdminDeactivateUser clears the target's password hash and
// revokes every session, leaving the account unable to authenticate.
func (s *server) handleAdminDeactivateUser(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := protectBuiltin(id); err != nil {
		s.writeError(w, err)

		return
	}

	if _, err := s.store.GetUserByID(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.store.SetPasswordHash(r.Context(), id, nil); err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.sessions.RevokeAll(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type impersonateRequest struct {
	AdminPassword string `json:"admin_password"`
}

// handleAdminImpersonate mints a short-lived session for the target
// user after re-verifying the acting admin's password.
func (s *server) handleAdminImpersonate(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	var req impersonateRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.reverifyAdmin(r, req.AdminPassword); err != nil {
		s.writeError(w, err)

		return
	}

	if _, err := s.store.GetUserByID(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	sess, err := s.sessions.Create(r.Context(), id, false)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:    sess.ID,
		Key:   sess.Key,
		Until: sess.Until,
	})
}

// --- Session management ---

// handleAdminListSessions returns active sessions across all users.
func (s *server) handleAdminListSessions(
	w http.ResponseWriter, r *http.Request,
) {
	filter, err := parseSessionFilter(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	sessions, err := s.store.ListSessions(
		r.Context(), filter, time.Now().UTC(),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// handleAdminDeleteSession revokes any session by id.
func (s *server) handleAdminDeleteSession(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.store.DeleteSessionByID(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
