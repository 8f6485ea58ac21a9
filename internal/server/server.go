// Package server provides the HTTP service: subscription endpoints, a
// health check, and a catch-all origin-pull handler that expands rule
// templates when the origin has no literal file for a path.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dimonb/cfgapp/internal/clash"
	"github.com/dimonb/cfgapp/internal/config"
	"github.com/dimonb/cfgapp/internal/fetch"
	"github.com/dimonb/cfgapp/internal/processor"
	"github.com/dimonb/cfgapp/internal/proxyconf"
)

// Server handles all HTTP routes of the service.
type Server struct {
	settings   *config.Settings
	client     *fetch.Client
	conf       *proxyconf.Config
	generator  *proxyconf.Generator
	logger     *slog.Logger
	originBase string
}

// New creates a Server. conf may be nil when no proxy topology file is
// configured; the subscription endpoints then answer 500. A nil logger
// discards all output.
func New(settings *config.Settings, client *fetch.Client, conf *proxyconf.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}
	s := &Server{
		settings:   settings,
		client:     client,
		conf:       conf,
		logger:     logger,
		originBase: "https://" + settings.APIHost,
	}
	if conf != nil {
		s.generator = proxyconf.NewGenerator(conf, settings, logger)
	}
	return s
}

// Handler returns the route multiplexer for the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sr", s.handleShadowRocket)
	mux.HandleFunc("/sub", s.handleSubscriptionPage)
	mux.HandleFunc("/", s.handleProxy)
	return mux
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": config.Version,
	})
}

// handleProxy forwards the request to the origin host. A 404 there falls
// back to fetching "<path>.tpl" and running it through the template engine.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pathWithQuery := r.URL.Path
	if r.URL.RawQuery != "" {
		pathWithQuery += "?" + r.URL.RawQuery
	}
	s.logger.Info("Incoming request", "path", pathWithQuery)

	headers := forwardHeaders(r.Header)
	origin, err := s.forward(r.Context(), pathWithQuery, headers)
	if err != nil {
		s.logger.Error("Forward request failed", "path", pathWithQuery, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Forward request failed"})
		return
	}
	s.logger.Debug("Origin response", "path", pathWithQuery, "status", origin.StatusCode)

	if origin.StatusCode != http.StatusNotFound {
		relay(w, origin)
		return
	}

	tplPath := r.URL.Path + ".tpl"
	if r.URL.RawQuery != "" {
		tplPath += "?" + r.URL.RawQuery
	}
	s.logger.Info("Origin returned 404, trying template", "template", tplPath)

	tpl, err := s.forward(r.Context(), tplPath, headers)
	if err != nil || !tpl.Success() {
		if err != nil {
			s.logger.Warn("Template fetch failed", "template", tplPath, "error", err)
		} else {
			s.logger.Warn("Template fetch failed", "template", tplPath, "status", tpl.StatusCode)
		}
		relay(w, origin)
		return
	}

	body, err := s.renderTemplate(r, tpl.Body)
	if err != nil {
		s.logger.Error("Template processing failed", "template", tplPath, "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Worker error"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// renderTemplate expands a fetched template body. Clash YAML documents go
// through the Clash processor, everything else through the plain engine.
func (s *Server) renderTemplate(r *http.Request, content string) (string, error) {
	engine := s.engineForRequest(r)
	if clash.Detect(content) {
		q := r.URL.Query()
		cp := clash.NewProcessor(engine, s.generator, s.logger)
		return cp.Process(r.Context(), content, q.Get("sub"), q.Get("hash"), q.Get("u"))
	}
	return engine.Process(r.Context(), content), nil
}

// engineForRequest builds a template engine whose fetches route same-host
// rule-set URLs back through the origin with the inbound headers attached.
func (s *Server) engineForRequest(r *http.Request) *processor.TemplateProcessor {
	rewriter := &originRewriteFetcher{
		client:       s.client,
		originBase:   s.originBase,
		incomingHost: r.Host,
		headers:      forwardHeaders(r.Header),
	}
	return processor.NewTemplateProcessor(rewriter, s.processorOptions(), s.logger)
}

func (s *Server) processorOptions() processor.Options {
	return processor.Options{
		IPv4BlockPrefix:    s.settings.IPv4BlockPrefix,
		IPv6BlockPrefix:    s.settings.IPv6BlockPrefix,
		EnableCompaction:   s.settings.EnableCompaction,
		CompactTargetMax:   s.settings.CompactTargetMax,
		CompactMinPrefixV4: s.settings.CompactMinPrefixV4,
		CompactMinPrefixV6: s.settings.CompactMinPrefixV6,
	}
}

func (s *Server) forward(ctx context.Context, pathWithQuery string, headers http.Header) (*fetch.Result, error) {
	return s.client.FetchWithHeaders(ctx, s.originBase+pathWithQuery, headers)
}

// originRewriteFetcher proxies rule-set URLs that point back at the
// incoming host through the origin API host instead, carrying the inbound
// request headers. External URLs are fetched directly without them.
type originRewriteFetcher struct {
	client       *fetch.Client
	originBase   string
	incomingHost string
	headers      http.Header
}

func (f *originRewriteFetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Result, error) {
	u, err := url.Parse(rawURL)
	if err == nil && f.originBase != "" && f.incomingHost != "" && u.Host == f.incomingHost {
		target := f.originBase + u.Path
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
		return f.client.FetchWithHeaders(ctx, target, f.headers)
	}
	return f.client.Fetch(ctx, rawURL)
}

// forwardHeaders clones inbound headers for origin requests, dropping
// cookies and the host header.
func forwardHeaders(h http.Header) http.Header {
	out := h.Clone()
	out.Del("Cookie")
	out.Del("Host")
	return out
}

// Hop-by-hop headers are never relayed. Content-Length is recomputed
// because the fetch layer caps body size.
var skipRelayHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
}

// relay writes an origin response through unchanged.
func relay(w http.ResponseWriter, result *fetch.Result) {
	for key, values := range result.Header {
		if _, skip := skipRelayHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write([]byte(result.Body))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
