// Package webhook implements webhook ingress (C13): a net/http server
// exposing the secondary-platform, primary-platform, repo-provider,
// voice, health, and authenticated API endpoints. The secondary, primary
// and repo-provider handlers reply 200 as soon as the body is read and
// hand it off asynchronously; /voice/* and /api/* run their handler
// within the request.
package webhook

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/local/steward/internal/cache"
)

const (
	ackBudget     = 3 * time.Second
	dedupTTL      = 5 * time.Minute
	deliveryIDHdr = "X-Delivery-Id"
	apiKeyHdr     = "X-API-Key"
)

// Handlers bundles the callbacks the server hands ingress off to.
// SecondaryInbound, PrimaryInbound and RepoEvent are each invoked in their
// own goroutine after the request body is read, so they may run
// arbitrarily long without holding the connection open. Voice and API run
// within the request, and their output is the response.
type Handlers struct {
	SecondaryInbound func(body []byte, sig string)
	PrimaryInbound   func(body []byte)
	RepoEvent        func(deliveryID string, body []byte)
	Voice            func(path string, body []byte) (response string)
	API              func(w http.ResponseWriter, r *http.Request)
}

// Server wraps net/http with the endpoint table C13 specifies.
type Server struct {
	addr          string
	apiKey        string
	webhookSecret string
	handlers      Handlers
	dedup         *cache.LRU
	httpServer    *http.Server
}

// New constructs a Server. apiKey authenticates /api/*. webhookSecret is
// stored but not checked by the Server: /webhook passes its X-Signature
// header to SecondaryInbound unverified.
func New(addr, apiKey, webhookSecret string, h Handlers) *Server {
	return &Server{
		addr:          addr,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		handlers:      h,
		dedup:         cache.New(4096, dedupTTL),
	}
}

// Start runs the server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleSecondary)
	mux.HandleFunc("/telegram", s.handlePrimary)
	mux.HandleFunc("/github-webhook", s.handleRepoEvent)
	mux.HandleFunc("/voice/", s.handleVoice)
	mux.HandleFunc("/api/", s.handleAPI)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("webhook: listening on %s", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleSecondary(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("X-Signature")
	w.WriteHeader(http.StatusOK)
	if s.handlers.SecondaryInbound != nil {
		go s.handlers.SecondaryInbound(body, sig)
	}
}

func (s *Server) handlePrimary(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	if s.handlers.PrimaryInbound != nil {
		go s.handlers.PrimaryInbound(body)
	}
}

func (s *Server) handleRepoEvent(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(deliveryIDHdr)
	if deliveryID != "" {
		if _, hit := s.dedup.Get(deliveryID); hit {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.dedup.Set(deliveryID, true)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	if s.handlers.RepoEvent != nil {
		go s.handlers.RepoEvent(deliveryID, body)
	}
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.handlers.Voice == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	resp := s.handlers.Voice(r.URL.Path, body)
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, resp)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get(apiKeyHdr) != s.apiKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.handlers.API != nil {
		s.handlers.API(w, r)
		return
	}
	http.NotFound(w, r)
}
