package api

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/chative-commerce/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/response"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	qstashx "github.com/tanpawarit/chative-commerce/pkg/qstash"
)

type fakeTurns struct {
	mu     sync.Mutex
	result orchestrator.TurnResult
	got    []orchestrator.Turn
}

func (f *fakeTurns) HandleTurn(ctx context.Context, turn orchestrator.Turn) orchestrator.TurnResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, turn)
	return f.result
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []OutboundMessage
	dest []string
}

func (f *fakePublisher) Publish(ctx context.Context, destination string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.dest = append(f.dest, destination)
	f.sent = append(f.sent, payload.(OutboundMessage))
	return fmt.Sprintf("msg_%d", len(f.sent)), nil
}

func newTestServer(t *testing.T, cfg Config, turns TurnHandler, opts ...Option) *httptest.Server {
	t.Helper()

	s, err := NewServer(cfg, turns, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postTurn(t *testing.T, url, body string, header http.Header) (*http.Response, TurnResponse) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url+"/v1/turns", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out TurnResponse
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusInternalServerError {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func sign(t *testing.T, key string, body []byte) string {
	t.Helper()

	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":  "Upstash",
		"sub":  "https://shop.example/v1/turns",
		"body": base64.URLEncoding.EncodeToString(sum[:]),
		"exp":  time.Now().Add(time.Minute).Unix(),
		"iat":  time.Now().Add(-time.Second).Unix(),
	})
	out, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{}, &fakeTurns{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPostTurn(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{result: orchestrator.TurnResult{
		Reply:   "Added two Classic Burgers.",
		State:   statex.StateBuildingOrder,
		Summary: "item added | delivery: pickup",
	}}
	pub := &fakePublisher{}
	srv := newTestServer(t, Config{ReplyDestination: "https://chat.example/outbound"}, turns, WithPublisher(pub))

	resp, out := postTurn(t, srv.URL, `{"conversation_id":" c1 ","message":"two burgers","metadata":{"customer_name":"Ann"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Added two Classic Burgers.", out.Reply)
	assert.Equal(t, statex.StateBuildingOrder, out.State)
	assert.Equal(t, "item added | delivery: pickup", out.Summary)

	require.Len(t, turns.got, 1)
	assert.Equal(t, "c1", turns.got[0].ConversationID)
	assert.Equal(t, "Ann", turns.got[0].Metadata.String(statex.MetaCustomerName))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "https://chat.example/outbound", pub.dest[0])
	assert.Equal(t, OutboundMessage{Event: EventReply, ConversationID: "c1", Reply: out.Reply, State: statex.StateBuildingOrder}, pub.sent[0])
}

func TestPostTurnPublishesOrderEvent(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	turns := &fakeTurns{result: orchestrator.TurnResult{Reply: "Your order is placed!", State: statex.StateOrderPlaced}}
	srv := newTestServer(t, Config{ReplyDestination: "orders"}, turns, WithPublisher(pub))

	resp, _ := postTurn(t, srv.URL, `{"conversation_id":"c1","message":"yes, place it"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, EventOrderPlaced, pub.sent[0].Event)
}

func TestPostTurnPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("qstash down")}
	turns := &fakeTurns{result: orchestrator.TurnResult{Reply: "Hi!", State: statex.StateDiscovery}}
	srv := newTestServer(t, Config{ReplyDestination: "orders"}, turns, WithPublisher(pub))

	resp, out := postTurn(t, srv.URL, `{"conversation_id":"c1","message":"hi"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hi!", out.Reply)
}

func TestPostTurnErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result orchestrator.TurnResult
		body   string
		status int
		reply  string
	}{
		{name: "bad json", body: `{"conversation_id":`, status: http.StatusBadRequest},
		{name: "missing message", body: `{"conversation_id":"c1","message":"  "}`, status: http.StatusBadRequest},
		{
			name:   "busy",
			body:   `{"conversation_id":"c1","message":"hi"}`,
			result: orchestrator.TurnResult{Reply: response.ApologyReply, Err: fmt.Errorf("%w: conversation=c1", contractx.ErrConversationBusy)},
			status: http.StatusConflict,
			reply:  response.ApologyReply,
		},
		{
			name:   "internal",
			body:   `{"conversation_id":"c1","message":"hi"}`,
			result: orchestrator.TurnResult{Err: errors.New("store offline")},
			status: http.StatusInternalServerError,
			reply:  response.ApologyReply,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, Config{}, &fakeTurns{result: tc.result})
			resp, out := postTurn(t, srv.URL, tc.body, nil)
			require.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.reply, out.Reply)
			assert.NotContains(t, out.Reply, "store offline")
			if tc.status == http.StatusConflict {
				assert.Equal(t, "1", resp.Header.Get("Retry-After"))
			}
		})
	}
}

func TestPostTurnSignature(t *testing.T) {
	t.Parallel()

	client, err := qstashx.NewClient(qstashx.Config{
		URL:               "https://qstash.example",
		Token:             "tok",
		CurrentSigningKey: "current",
		NextSigningKey:    "next",
	})
	require.NoError(t, err)

	turns := &fakeTurns{result: orchestrator.TurnResult{Reply: "Hi!", State: statex.StateDiscovery}}
	srv := newTestServer(t, Config{RequireSignature: true}, turns, WithVerifier(client))
	body := `{"conversation_id":"c1","message":"hi"}`

	resp, _ := postTurn(t, srv.URL, body, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "unsigned")

	resp, _ = postTurn(t, srv.URL, body, http.Header{qstashx.SignatureHeader: {sign(t, "intruder", []byte(body))}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "wrong key")

	resp, _ = postTurn(t, srv.URL, body, http.Header{qstashx.SignatureHeader: {sign(t, "current", []byte(`{"tampered":true}`))}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "body mismatch")

	resp, out := postTurn(t, srv.URL, body, http.Header{qstashx.SignatureHeader: {sign(t, "next", []byte(body))}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hi!", out.Reply)
	assert.Len(t, turns.got, 1)
}

func TestNewServerRequiresVerifierForSignedMode(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{RequireSignature: true}, &fakeTurns{})
	assert.ErrorIs(t, err, contractx.ErrValidation)

	_, err = NewServer(Config{}, nil)
	assert.ErrorIs(t, err, contractx.ErrValidation)
}
