package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inkwell/api/internal/auth"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Readiness(ctx)
		status := "ready"
		statusCode := http.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		if s.service.metrics == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"email":         session.Email,
			"expiresAt":     session.ExpiresAt.Unix(),
		})
		return
	}

	parts := splitPath(r.URL.Path)

	// Share links are public; the share token stands in for a session.
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "share" {
		s.handleShare(w, r, parts[2:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/platforms/dev-connect" {
		s.handleDevConnect(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "publish" {
		s.handlePublish(w, r, session, parts[2])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "teams" {
		s.handleTeams(w, r, session, parts[2:])
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "invite" && parts[3] == "accept" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body AcceptInviteInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AcceptInvite(r.Context(), session, parts[2], body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "content" {
		s.handleContent(w, r, session, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTeams(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	var (
		payload map[string]any
		err     error
	)

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		payload, err = s.service.ListTeams(r.Context(), session)

	case len(rest) == 0 && r.Method == http.MethodPost:
		var body CreateTeamInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateTeam(r.Context(), session, body)

	case len(rest) == 2 && rest[1] == "members" && r.Method == http.MethodGet:
		payload, err = s.service.ListMembers(r.Context(), session, rest[0])

	case len(rest) == 2 && rest[1] == "platform-accounts" && r.Method == http.MethodGet:
		payload, err = s.service.ListPlatformAccounts(r.Context(), session, rest[0])

	case len(rest) == 2 && rest[1] == "content" && r.Method == http.MethodGet:
		query := r.URL.Query()
		payload, err = s.service.ListContent(r.Context(), session, rest[0], ContentListInput{
			Status:     query.Get("status"),
			AssignedTo: query.Get("assignedTo"),
			Query:      query.Get("q"),
		})

	case len(rest) == 2 && rest[1] == "content" && r.Method == http.MethodPost:
		var body CreateContentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateContent(r.Context(), session, rest[0], body)

	case len(rest) == 2 && rest[1] == "invites" && r.Method == http.MethodPost:
		var body CreateInviteInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.CreateInvite(r.Context(), session, rest[0], body)

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

func (s *HTTPServer) handleContent(w http.ResponseWriter, r *http.Request, session Session, contentID string, rest []string) {
	var (
		payload map[string]any
		err     error
	)

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		payload, err = s.service.GetContent(r.Context(), session, contentID)

	case len(rest) == 1 && rest[0] == "status" && r.Method == http.MethodPost:
		var body TransitionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.TransitionStatus(r.Context(), session, contentID, body)

	case len(rest) == 1 && rest[0] == "share" && r.Method == http.MethodPut:
		var body ShareSettingsInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.service.UpdateShareSettings(r.Context(), session, contentID, body)

	case len(rest) == 1 && rest[0] == "activity" && r.Method == http.MethodGet:
		payload, err = s.service.ListActivity(r.Context(), session, contentID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

// writeServiceError maps err onto the error envelope. Unexpected errors are
// logged here since the caller only ever sees a generic message.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusTooManyRequests {
		if hint, ok := details.(map[string]any); ok {
			if retry, ok := hint["retryAfterSeconds"].(int); ok {
				w.Header().Set("Retry-After", strconv.Itoa(retry))
			}
		}
	}
	if code == "SERVER_ERROR" {
		s.service.log().WithError(err).WithFields(logrus.Fields{
			"request_id": requestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		defer func() {
			if recovered := recover(); recovered != nil {
				s.service.log().WithField("request_id", requestID).
					WithError(fmt.Errorf("panic: %v", recovered)).
					Error("handler panicked")
				if !writer.wroteHeader {
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", nil)
				}
			}

			elapsed := time.Since(started)
			s.service.metrics.ObserveHTTP(r.Method, r.URL.Path, writer.status, elapsed)
			s.service.log().WithFields(logrus.Fields{
				"request_id":  requestID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      writer.status,
				"duration_ms": elapsed.Milliseconds(),
			}).Info("request")
		}()

		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Share-Password")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// clientIP keys a request by its socket peer. Forwarding headers are read
// only when the peer is a trusted proxy, and then the right-most hop that is
// not itself trusted wins. Hops left of it are client supplied.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !isTrustedProxy(peer, trusted) {
		return peer
	}

	if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		hops := strings.Split(strings.Join(forwarded, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !isTrustedProxy(hop, trusted) {
				return hop
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if _, err := netip.ParseAddr(realIP); err == nil {
			return realIP
		}
	}
	return peer
}

func isTrustedProxy(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", nil
}
