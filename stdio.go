package mcpui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StdIO implements a standard input/output transport for the UI side, framing each JSON-RPC message
// as one line over stdin/stdout or similar io.Reader/io.Writer pairs. This is how a host that spawns
// the UI as a subprocess talks to it.
//
// StdIO provides a single session. Proper initialization requires using the NewStdIO constructor.
type StdIO struct {
	sess *stdIOSession
}

type stdIOSession struct {
	id     string
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMessages chan stdIOMessage
	lines         chan []byte
	startOnce     sync.Once
	stopOnce      sync.Once
	done          chan struct{}
}

type stdIOMessage struct {
	msg  []byte
	errs chan error
}

// StdIOOption represents the options for StdIO.
type StdIOOption func(*StdIO)

// WithStdIOLogger sets the logger for the transport.
func WithStdIOLogger(logger *slog.Logger) StdIOOption {
	return func(s *StdIO) {
		s.sess.logger = logger
	}
}

// NewStdIO creates a new StdIO instance configured with the provided reader and writer.
func NewStdIO(reader io.Reader, writer io.Writer, options ...StdIOOption) StdIO {
	s := StdIO{
		sess: &stdIOSession{
			id:            uuid.New().String(),
			reader:        reader,
			writer:        writer,
			logger:        slog.Default(),
			writeMessages: make(chan stdIOMessage),
			lines:         make(chan []byte),
			done:          make(chan struct{}),
		},
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// StartSession implements the ClientTransport interface. The session is ready immediately, as the
// pipes are already open.
func (s StdIO) StartSession(_ context.Context) (Session, error) {
	s.sess.startOnce.Do(func() {
		go s.sess.processWriteMessages()
		go s.sess.readLines()
	})
	return s.sess, nil
}

func (s *stdIOSession) ID() string {
	return s.id
}

func (s *stdIOSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// Append newline to maintain message framing protocol
	msgBs = append(msgBs, '\n')

	ioMsg := stdIOMessage{
		msg:  msgBs,
		errs: make(chan error, 1),
	}

	// Queue the message so concurrent senders never interleave their writes.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		s.logger.Warn("session is closed while feeding writeMessages channel", slog.String("message", string(msgBs)))
		return nil
	case s.writeMessages <- ioMsg:
	}

	select {
	case err := <-ioMsg.errs:
		if err != nil {
			s.logger.Error("get error result from write", slog.String("err", err.Error()))
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		s.logger.Warn("session is closed while waiting for write result", slog.String("message", string(msgBs)))
		return nil
	}
}

func (s *stdIOSession) Messages() iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		for {
			var line []byte
			var ok bool
			select {
			case <-s.done:
				return
			case line, ok = <-s.lines:
			}
			if !ok {
				return
			}

			// We stop iteration if yield returns false
			if !yield(json.RawMessage(line)) {
				return
			}
		}
	}
}

func (s *stdIOSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// readLines feeds the lines channel until the reader fails. The blocking read cannot be interrupted,
// so the goroutine may outlive Stop until the reader is closed by its owner.
func (s *stdIOSession) readLines() {
	defer close(s.lines)

	// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
	reader := bufio.NewReader(s.reader)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Error("failed to read message", "err", err)
			}
			return
		}
	}
}

func (s *stdIOSession) processWriteMessages() {
	for {
		var msg stdIOMessage
		select {
		case <-s.done:
			return
		case msg = <-s.writeMessages:
		}

		_, err := s.writer.Write(msg.msg)

		msg.errs <- err
	}
}
