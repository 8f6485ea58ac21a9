package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"html/template"
	"net/http"

	"github.com/dimonb/cfgapp/internal/proxyconf"
)

// authenticate validates the u and hash query parameters against the proxy
// topology. hash must equal the hex sha256 digest of "<user>.<salt>".
func (s *Server) authenticate(r *http.Request) (string, bool) {
	q := r.URL.Query()
	user := q.Get("u")
	hash := q.Get("hash")
	if user == "" || hash == "" {
		return "", false
	}
	if s.conf == nil || !s.conf.HasUser(user) {
		return "", false
	}

	sum := sha256.Sum256([]byte(user + "." + s.settings.Salt))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(hash), []byte(expected)) != 1 {
		return "", false
	}
	return user, true
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := s.authenticate(r)
	if !ok {
		s.logger.Warn("Authentication failed", "path", r.URL.Path, "user", r.URL.Query().Get("u"))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
		return "", false
	}
	return user, true
}

// handleShadowRocket serves the base64 subscription payload for ShadowRocket
// clients.
func (s *Server) handleShadowRocket(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Proxy configuration not available"})
		return
	}
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	payload := s.generator.ShadowRocketSubscription(q.Get("sub"), q.Get("hash"), user)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(payload))
	s.logger.Info("Subscription delivered", "user", user, "sub", q.Get("sub"))
}

type subscriptionPageData struct {
	User    string
	SubName string
	SubURL  string

	// QRCodeURL is a data: URL; the template package rejects those unless
	// they are pre-typed as trusted.
	QRCodeURL template.URL
}

var subscriptionPage = template.Must(template.New("subscription").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Subscription Configuration</title>
<style>
  body { font-family: -apple-system, Arial, sans-serif; max-width: 640px; margin: 40px auto; padding: 0 16px; }
  .qr { display: block; margin: 16px 0; }
  .link { word-break: break-all; background: #f4f4f4; padding: 12px; border-radius: 6px; font-family: monospace; }
  button { margin-top: 12px; padding: 8px 16px; cursor: pointer; }
</style>
</head>
<body>
<h1>Subscription Configuration</h1>
<p>User: <b>{{.User}}</b> &middot; Subscription: <b>{{.SubName}}</b></p>
<h2>ShadowRocket</h2>
<p>Scan the QR code or open the link below in ShadowRocket.</p>
<img class="qr" src="{{.QRCodeURL}}" alt="QR code" width="256" height="256">
<div class="link" id="sub-url">{{.SubURL}}</div>
<button onclick="navigator.clipboard.writeText(document.getElementById('sub-url').textContent)">Copy to Clipboard</button>
</body>
</html>
`))

// handleSubscriptionPage serves an HTML page with the sub:// link and its QR
// code.
func (s *Server) handleSubscriptionPage(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Proxy configuration not available"})
		return
	}
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	subName := q.Get("sub")

	baseURL := s.settings.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}

	subURL := s.generator.SubscriptionURL(baseURL, user, subName, q.Get("hash"))
	qrCode, err := proxyconf.QRCodeBase64(subURL)
	if err != nil {
		s.logger.Error("QR code generation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to render subscription page"})
		return
	}

	display := subName
	if display == "" {
		display = "default"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = subscriptionPage.Execute(w, subscriptionPageData{
		User:      user,
		SubName:   display,
		SubURL:    subURL,
		QRCodeURL: template.URL("data:image/png;base64," + qrCode),
	})
}
