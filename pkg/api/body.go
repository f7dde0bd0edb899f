package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// readJSON decodes a JSON request body into v. The declared
// Content-Length must be present, at most the configured maximum, and
// must match the number of body bytes actually received; any mismatch
// rejects the request before the payload is interpreted.
func (s *server) readJSON(r *http.Request, v any) error {
	declared := r.ContentLength

	if declared < 0 {
		return clientErr(errBadRequest, "Content-Length header is required")
	}

	if declared > s.cfg.Server.MaxBodyBytes {
		return clientErr(errBadRequest,
			"request body exceeds %d bytes", s.cfg.Server.MaxBodyBytes)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, declared+1))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}

	if int64(len(body)) != declared {
		return clientErr(errBadRequest,
			"request body does not match Content-Length")
	}

	if err := json.Unmarshal(body, v); err != nil {
		return clientErr(errInvalidJSON, "%v", err)
	}

	return nil
}
