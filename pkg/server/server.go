// Package server exposes the chat service as a JSON HTTP API with an SSE
// stream of reply drafts per chat.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/forkchat/pkg/chat"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/prompts"
	"github.com/go-go-golems/forkchat/pkg/providers/factory"
	"github.com/go-go-golems/forkchat/pkg/summarizer"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes caps request bodies. Whole chat documents go through PUT.
const MaxBodyBytes = 4 << 20

type ProviderLister interface {
	Describe() []factory.Info
}

// Subscriber streams the events of one chat. *events.Bus implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, chatID conversation.ChatID) (<-chan *events.ChatEvent, error)
}

type Server struct {
	chats       *chat.Service
	prompts     prompts.Store
	providers   ProviderLister
	subscriber  Subscriber
	summarizer  summarizer.Summarizer
	corsOrigins []string
	heartbeat   time.Duration

	registry *prometheus.Registry
	metrics  *metrics
}

type Option func(*Server)

func WithPrompts(p prompts.Store) Option {
	return func(s *Server) {
		s.prompts = p
	}
}

func WithProviders(p ProviderLister) Option {
	return func(s *Server) {
		s.providers = p
	}
}

func WithSubscriber(sub Subscriber) Option {
	return func(s *Server) {
		s.subscriber = sub
	}
}

func WithSummarizer(sum summarizer.Summarizer) Option {
	return func(s *Server) {
		s.summarizer = sum
	}
}

func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithHeartbeat sets how often idle SSE streams get a comment line.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// WithRegistry registers the HTTP metrics on r instead of a private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

func NewServer(chats *chat.Service, options ...Option) (*Server, error) {
	s := &Server{
		chats:       chats,
		prompts:     prompts.NewInMemoryStore(),
		providers:   factory.NewRegistry(),
		summarizer:  summarizer.Static{},
		corsOrigins: []string{"*"},
		heartbeat:   15 * time.Second,
	}
	for _, o := range options {
		o(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	m, err := newMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	return s, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverPanic)
	r.Use(s.correlationID)
	r.Use(s.cors)
	r.Use(s.metrics.middleware)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chats", s.listChats).Methods(http.MethodGet)
	api.HandleFunc("/chats", s.createChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}", s.getChat).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}", s.putChat).Methods(http.MethodPut)
	api.HandleFunc("/chats/{id}", s.patchChat).Methods(http.MethodPatch)
	api.HandleFunc("/chats/{id}", s.deleteChat).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{id}/branch", s.getBranch).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}/tree", s.getTree).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}/events", s.streamEvents).Methods(http.MethodGet)

	api.HandleFunc("/chats/{id}/messages", s.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/messages/{mid}", s.deleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{id}/messages/{mid}/edit", s.editMessage).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/messages/{mid}/regenerate", s.regenerate).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/messages/{mid}/switch", s.switchBranch).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/messages/{mid}/branch", s.branchFrom).Methods(http.MethodPost)

	api.HandleFunc("/providers", s.listProviders).Methods(http.MethodGet)

	api.HandleFunc("/prompts", s.listPrompts).Methods(http.MethodGet)
	api.HandleFunc("/prompts", s.createPrompt).Methods(http.MethodPost)
	api.HandleFunc("/prompts/{id}", s.getPrompt).Methods(http.MethodGet)
	api.HandleFunc("/prompts/{id}", s.updatePrompt).Methods(http.MethodPut)
	api.HandleFunc("/prompts/{id}", s.deletePrompt).Methods(http.MethodDelete)

	// preflight requests never match a method-restricted route
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.providers.Describe())
}
