package app

import "net/http"

// handlePublish serves POST /api/publish/{platform}. The platform segment is
// resolved by the service so unknown names share the validation path.
func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request, session Session, platform string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body PublishInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Publish(r.Context(), session, platform, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
