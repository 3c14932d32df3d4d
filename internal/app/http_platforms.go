package app

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	devConnectMessageType = "platform_oauth_result"
	defaultReturnPath     = "/settings/integrations"
)

var popupTemplate = template.Must(template.New("dev-connect").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{if .Success}}{{.Title}}. This window will close automatically.{{else}}Connection failed: {{.Error}}{{end}}</p>
<script>
(function () {
  var result = {{.Payload}};
  if (window.opener) {
    window.opener.postMessage(result, {{.Origin}});
  }
  window.close();
})();
</script>
</body>
</html>
`))

type devConnectMode int

const (
	devConnectRedirect devConnectMode = iota
	devConnectJSON
	devConnectPopup
)

func devConnectModeFrom(query url.Values) devConnectMode {
	if direct, err := strconv.ParseBool(query.Get("direct")); err == nil && direct {
		return devConnectJSON
	}
	switch strings.ToLower(strings.TrimSpace(query.Get("mode"))) {
	case "popup":
		return devConnectPopup
	case "json", "direct":
		return devConnectJSON
	default:
		return devConnectRedirect
	}
}

// handleDevConnect completes a mock OAuth connection in sandbox deployments.
// Popup and redirect flows run in a browser tab that cannot set headers, so
// the access token may also arrive as a query parameter.
func (s *HTTPServer) handleDevConnect(w http.ResponseWriter, r *http.Request) {
	if !s.service.SandboxEnabled() {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	query := r.URL.Query()
	mode := devConnectModeFrom(query)
	platform := strings.ToLower(strings.TrimSpace(query.Get("platform")))

	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(query.Get("access_token"))
	}
	if token == "" {
		s.devConnectFailed(w, r, mode, platform, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.devConnectFailed(w, r, mode, platform, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	account, err := s.service.ConnectSandboxAccount(r.Context(), session, platform, query.Get("teamId"))
	if err != nil {
		if mode == devConnectJSON {
			s.writeServiceError(w, r, err)
			return
		}
		status, code, message, _ := mapError(err)
		s.devConnectFailed(w, r, mode, platform, status, code, message)
		return
	}

	switch mode {
	case devConnectJSON:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"platform": account.Platform,
			"account":  accountJSON(account),
		})
	case devConnectPopup:
		s.writePopup(w, http.StatusOK, map[string]any{
			"type":      devConnectMessageType,
			"success":   true,
			"platform":  account.Platform,
			"accountId": account.ID,
		}, "Connected "+platformDisplayName(account.Platform), "")
	default:
		s.redirect(w, r, s.returnURL(query.Get("returnTo"), url.Values{"connected": {account.Platform}}))
	}
}

func (s *HTTPServer) devConnectFailed(w http.ResponseWriter, r *http.Request, mode devConnectMode, platform string, status int, code, message string) {
	switch mode {
	case devConnectPopup:
		s.writePopup(w, status, map[string]any{
			"type":     devConnectMessageType,
			"success":  false,
			"platform": platform,
			"error":    message,
			"code":     code,
		}, "Connection failed", message)
	case devConnectRedirect:
		s.redirect(w, r, s.returnURL(r.URL.Query().Get("returnTo"), url.Values{"error": {strings.ToLower(code)}}))
	default:
		writeError(w, status, code, message, nil)
	}
}

func (s *HTTPServer) writePopup(w http.ResponseWriter, status int, payload map[string]any, title, failure string) {
	origin := s.service.AppOrigin()
	if origin == "" {
		origin = "*"
	}
	var buf bytes.Buffer
	err := popupTemplate.Execute(&buf, map[string]any{
		"Title":   title,
		"Success": failure == "",
		"Error":   failure,
		"Payload": payload,
		"Origin":  origin,
	})
	if err != nil {
		s.service.log().WithError(err).Error("render dev-connect popup")
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) redirect(w http.ResponseWriter, r *http.Request, target string) {
	// The middleware defaults every response to JSON.
	w.Header().Del("Content-Type")
	http.Redirect(w, r, target, http.StatusFound)
}

// returnURL keeps redirects on the app's own origin: only absolute paths are
// accepted from the caller.
func (s *HTTPServer) returnURL(returnTo string, extra url.Values) string {
	path := strings.TrimSpace(returnTo)
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, `\`) {
		path = defaultReturnPath
	}
	target, err := url.Parse(path)
	if err != nil {
		target = &url.URL{Path: defaultReturnPath}
	}
	values := target.Query()
	for key, list := range extra {
		for _, value := range list {
			values.Add(key, value)
		}
	}
	target.RawQuery = values.Encode()
	return s.service.AppOrigin() + target.String()
}
