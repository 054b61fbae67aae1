// Package api exposes the turn pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-commerce/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/response"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	qstashx "github.com/tanpawarit/chative-commerce/pkg/qstash"
)

const (
	EventReply       = "reply"
	EventOrderPlaced = "order_placed"
)

type Config struct {
	Addr             string        `envconfig:"ADDR" default:":8080"`
	ReplyDestination string        `envconfig:"REPLY_DESTINATION" split_words:"true"`
	RequireSignature bool          `envconfig:"REQUIRE_SIGNATURE" split_words:"true" default:"false"`
	MaxBodyBytes     int64         `envconfig:"MAX_BODY_BYTES" split_words:"true" default:"65536"`
	ReadTimeout      time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"10s"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"90s"`
}

type TurnHandler interface {
	HandleTurn(ctx context.Context, turn orchestrator.Turn) orchestrator.TurnResult
}

type Verifier interface {
	Verify(signature string, body []byte) error
}

type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

var (
	_ Verifier  = (*qstashx.Client)(nil)
	_ Publisher = (*qstashx.Client)(nil)
)

type TurnRequest struct {
	ConversationID string           `json:"conversation_id"`
	Message        string           `json:"message"`
	History        []statex.Message `json:"history,omitempty"`
	Metadata       statex.Metadata  `json:"metadata,omitempty"`
}

type TurnResponse struct {
	Reply   string                   `json:"reply"`
	State   statex.ConversationState `json:"state,omitempty"`
	Summary string                   `json:"summary,omitempty"`
}

// OutboundMessage is what gets published to the messaging channel after a turn.
type OutboundMessage struct {
	Event          string                   `json:"event"`
	ConversationID string                   `json:"conversation_id"`
	Reply          string                   `json:"reply"`
	State          statex.ConversationState `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	cfg       Config
	turns     TurnHandler
	verifier  Verifier
	publisher Publisher
	mux       *http.ServeMux
}

type Option func(*Server)

// WithVerifier turns on webhook signature checks.
func WithVerifier(v Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithPublisher delivers every reply to cfg.ReplyDestination.
func WithPublisher(p Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

func NewServer(cfg Config, turns TurnHandler, opts ...Option) (*Server, error) {
	if turns == nil {
		return nil, fmt.Errorf("%w: turn handler is required", contractx.ErrValidation)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	s := &Server{cfg: cfg, turns: turns, mux: http.NewServeMux()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if cfg.RequireSignature && s.verifier == nil {
		return nil, fmt.Errorf("%w: signature required but no verifier configured", contractx.ErrValidation)
	}

	s.mux.HandleFunc("POST /v1/turns", s.handleTurn)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until ctx is done, then drains in-flight turns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return
	}

	if s.verifier != nil {
		// Unsigned direct calls pass unless signatures are mandatory.
		signature := r.Header.Get(qstashx.SignatureHeader)
		if signature != "" || s.cfg.RequireSignature {
			if err := s.verifier.Verify(signature, body); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("rejected webhook signature")
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
				return
			}
		}
	}

	var req TurnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "conversation_id and message are required"})
		return
	}

	res := s.turns.HandleTurn(ctx, orchestrator.Turn{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		RecentHistory:  req.History,
		Metadata:       req.Metadata,
	})

	status := http.StatusOK
	switch {
	case res.Err == nil:
		s.publish(ctx, req.ConversationID, res)
	case errors.Is(res.Err, contractx.ErrConversationBusy):
		w.Header().Set("Retry-After", "1")
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	reply := res.Reply
	if reply == "" {
		reply = response.ApologyReply
	}
	writeJSON(w, status, TurnResponse{Reply: reply, State: res.State, Summary: res.Summary})
}

// publish forwards the reply to the channel. Delivery failures never fail the turn.
func (s *Server) publish(ctx context.Context, conversationID string, res orchestrator.TurnResult) {
	if s.publisher == nil || strings.TrimSpace(s.cfg.ReplyDestination) == "" {
		return
	}
	event := EventReply
	if res.State == statex.StateOrderPlaced {
		event = EventOrderPlaced
	}

	id, err := s.publisher.Publish(ctx, s.cfg.ReplyDestination, OutboundMessage{
		Event:          event,
		ConversationID: conversationID,
		Reply:          res.Reply,
		State:          res.State,
	})
	logger := log.Ctx(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("publish reply failed")
		return
	}
	logger.Debug().Str("conversation_id", conversationID).Str("message_id", id).Str("event", event).Msg("reply published")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}
