package mcpui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SSEClient implements a Server-Sent Events (SSE) transport for UIs rendered outside the host
// process. The host streams envelopes as "message" events and the UI posts its envelopes to the
// endpoint announced in the first "endpoint" event.
//
// Instances should be created using NewSSEClient.
type SSEClient struct {
	httpClient *http.Client
	connectURL string
	logger     *slog.Logger

	maxPayloadSize int
}

// SSEClientOption represents the options for the SSEClient.
type SSEClientOption func(*SSEClient)

type sseClientSession struct {
	id         string
	httpClient *http.Client
	connectURL *url.URL
	messageURL string
	logger     *slog.Logger
	body       io.ReadCloser

	messages chan json.RawMessage
	stopOnce sync.Once
	done     chan struct{}
}

// NewSSEClient creates an SSE client that connects to the specified connectURL. The optional
// httpClient parameter allows custom HTTP client configuration - if nil, the default HTTP
// client is used.
func NewSSEClient(connectURL string, httpClient *http.Client, options ...SSEClientOption) *SSEClient {
	cli := httpClient
	if cli == nil {
		cli = http.DefaultClient
	}
	s := &SSEClient{
		connectURL: connectURL,
		httpClient: cli,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// WithSSEClientMaxPayloadSize sets the maximum size of the payload that can be received
// from the host. If the payload size exceeds this limit, the error will be logged and
// the session ends.
func WithSSEClientMaxPayloadSize(size int) SSEClientOption {
	return func(s *SSEClient) {
		s.maxPayloadSize = size
	}
}

// WithSSEClientLogger sets the logger for the SSEClient.
func WithSSEClientLogger(logger *slog.Logger) SSEClientOption {
	return func(s *SSEClient) {
		s.logger = logger
	}
}

// StartSession establishes the SSE connection and waits for the endpoint event before returning
// the Session. The connection remains active until the context is cancelled, the session is
// stopped, or the host closes the stream.
func (s *SSEClient) StartSession(ctx context.Context) (Session, error) {
	connectURL, err := url.Parse(s.connectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connect URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, connectURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSE host: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	sess := &sseClientSession{
		id:         uuid.New().String(),
		httpClient: s.httpClient,
		connectURL: connectURL,
		logger:     s.logger,
		body:       resp.Body,
		messages:   make(chan json.RawMessage),
		done:       make(chan struct{}),
	}

	ready := make(chan error, 1)
	go sess.listenSSEMessages(s.maxPayloadSize, ready)

	select {
	case err := <-ready:
		if err != nil {
			sess.Stop()
			return nil, err
		}
	case <-ctx.Done():
		sess.Stop()
		return nil, ctx.Err()
	}

	return sess, nil
}

func (s *sseClientSession) ID() string { return s.id }

// Send transmits a JSON-encoded message to the host through an HTTP POST request. Returns an error
// if message encoding fails, the request cannot be created, or the host responds with a non-2xx
// status code.
func (s *sseClientSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messageURL, bytes.NewReader(msgBs))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func (s *sseClientSession) Messages() iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-s.messages:
				if !ok {
					return
				}
				if !yield(msg) {
					return
				}
			}
		}
	}
}

func (s *sseClientSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.body.Close()
	})
}

func (s *sseClientSession) listenSSEMessages(maxPayloadSize int, ready chan<- error) {
	defer close(s.messages)

	var config *sse.ReadConfig
	if maxPayloadSize > 0 {
		config = &sse.ReadConfig{
			MaxEventSize: maxPayloadSize,
		}
	}

	endpointReceived := false
	for ev, err := range sse.Read(s.body, config) {
		if err != nil {
			if !endpointReceived {
				ready <- fmt.Errorf("failed to read endpoint event: %w", err)
				return
			}
			select {
			case <-s.done:
			default:
				if !errors.Is(err, context.Canceled) {
					s.logger.Error("failed to read SSE message", "err", err)
				}
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			if endpointReceived {
				s.logger.Warn("ignoring repeated endpoint event", "data", ev.Data)
				continue
			}
			u, err := url.Parse(ev.Data)
			if err != nil {
				ready <- fmt.Errorf("parse endpoint URL: %w", err)
				return
			}
			if u.String() == "" {
				ready <- errors.New("empty endpoint URL")
				return
			}
			// Hosts may announce the endpoint relative to the stream URL.
			s.messageURL = s.connectURL.ResolveReference(u).String()
			endpointReceived = true
			close(ready)
		case "message", "":
			// The POST endpoint must be known before any envelope can be answered.
			if !endpointReceived {
				s.logger.Error("received message before endpoint URL")
				continue
			}

			select {
			case s.messages <- json.RawMessage(ev.Data):
			case <-s.done:
				return
			}
		default:
			s.logger.Warn("unhandled event type", "type", ev.Type)
		}
	}

	if !endpointReceived {
		ready <- errors.New("stream closed before endpoint event")
	}
}
