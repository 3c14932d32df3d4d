package app

import (
	"net/http"
	"strings"
)

func (s *HTTPServer) shareAccessFrom(r *http.Request) ShareAccess {
	return ShareAccess{
		Token:    strings.TrimSpace(r.URL.Query().Get("token")),
		Password: r.Header.Get("X-Share-Password"),
		ClientIP: clientIP(r, s.service.cfg.TrustedProxies),
	}
}

// handleShare serves /api/share/... for anonymous visitors holding a share token.
func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 2 || rest[1] == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	access := s.shareAccessFrom(r)

	var (
		payload map[string]any
		err     error
	)
	switch {
	case rest[0] == "content" && r.Method == http.MethodGet:
		payload, err = s.service.GetSharedContent(r.Context(), rest[1], access)

	case rest[0] == "annotations" && r.Method == http.MethodPost:
		var body ShareAnnotationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.AddShareAnnotation(r.Context(), rest[1], access, body)

	case rest[0] == "annotation-comments" && r.Method == http.MethodPost:
		var body ShareCommentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.AddShareAnnotationComment(r.Context(), rest[1], access, body)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if r.Method == http.MethodPost {
		writeJSON(w, http.StatusCreated, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
