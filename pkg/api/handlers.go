package api

import (
	"net/http"
	"time"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Extended bool   `json:"extended"`
}

type sessionResponse struct {
	ID    int       `json:"id"`
	Key   string    `json:"key"`
	Until time.Time `json:"until"`
}

// handleLogin authenticates a username/password pair and mints a
// session. All invalid-credential outcomes surface as the same error
// after the same artificial delay.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, err)

		return
	}

	if req.Username == "" || req.Password == "" {
		s.writeError(w, clientErr(errBadRequest,
			"username and password are required"))

		return
	}

	sess, err := s.sessions.Login(
		r.Context(), req.Username, req.Password, req.Extended,
	)
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

// handleLogout revokes the presented session.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	key := sessionKeyFromContext(r.Context())

	if err := s.sessions.Revoke(r.Context(), key); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the caller's resolved permissions.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissionsFromContext(r.Context()))
}

type changePasswordRequest struct {
	OldPassword   string `json:"old_password"`
	NewPassword   string `json:"new_password"`
	ClearSessions bool   `json:"clear_sessions"`
}

// handleChangePassword lets a user rotate their own password after
// re-proving the current one. When clear_sessions is set, every session
// of the user is revoked before the response is written.
func (s *server) handleChangePassword(
	w http.ResponseWriter, r *http.Request,
) {
	perms := permissionsFromContext(r.Context())

	var req changePasswordRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, err)

		return
	}

	if req.NewPassword == "" {
		s.writeError(w,
			clientErr(errBadPassword, "new password must not be empty"))

		return
	}

	user, err := s.store.GetUserByID(r.Context(), perms.UserID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if user.Locked {
		s.writeError(w, clientErr(errAccountLocked, "account is locked"))

		return
	}

	if user.PasswordHash == nil {
		s.writeError(w, clientErr(errForbidden, "account is deactivated"))

		return
	}

	ok, err := s.gate.Verify(r.Context(), *user.PasswordHash, req.OldPassword)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if !ok {
		s.writeError(w, clientErr(errBadLogin, "old password is incorrect"))

		return
	}

	hash, err := s.gate.Hash(r.Context(), req.NewPassword)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.store.SetPasswordHash(
		r.Context(), user.ID, &hash,
	); err != nil {
		s.writeError(w, err)

		return
	}

	if req.ClearSessions {
		if err := s.sessions.RevokeAll(r.Context(), user.ID); err != nil {
			s.writeError(w, err)

			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListMySessions returns the caller's active sessions. Filters
// apply within the caller's own rows only.
func (s *server) handleListMySessions(
	w http.ResponseWriter, r *http.Request,
) {
	perms := permissionsFromContext(r.Context())

	filter, err := parseSessionFilter(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	filter.UserIDEq = &perms.UserID

	sessions, err := s.store.ListSessions(
		r.Context(), filter, time.Now().UTC(),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// handleDeleteMySession revokes one of the caller's sessions by id.
// Sessions of other users are indistinguishable from unknown ids.
func (s *server) handleDeleteMySession(
	w http.ResponseWriter, r *http.Request,
) {
	perms := permissionsFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.store.DeleteUserSessionByID(
		r.Context(), perms.UserID, id,
	); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
