package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/metrics"
	"go.uber.org/zap"
)

// ErrReplyCancelled is returned by Next once the reply has been cancelled.
var ErrReplyCancelled = errors.New("reply stream cancelled")

// ReplyStream relays fragments from the provider to the caller while
// accumulating the full reply. The reply is persisted exactly once, on the
// first of completion, error or cancellation.
type ReplyStream struct {
	conversationID string
	upstream       domain.TextStream
	conversations  ConversationStore
	metrics        *metrics.Metrics
	logger         *zap.Logger

	mu        sync.Mutex
	reply     strings.Builder
	finalized bool
	cancelled bool

	pending string
}

// NewReplyStream bridges upstream into a reply for conversationID.
func NewReplyStream(conversationID string, upstream domain.TextStream, conversations ConversationStore, m *metrics.Metrics, logger *zap.Logger) *ReplyStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplyStream{
		conversationID: conversationID,
		upstream:       upstream,
		conversations:  conversations,
		metrics:        m,
		logger:         logger,
	}
}

// Next pulls the next fragment from the provider. It returns io.EOF after
// the reply completed and the provider's error after a failed read; both
// finalize the reply first. A read ended by cancellation, either through
// Cancel or through the request context, returns ErrReplyCancelled.
func (s *ReplyStream) Next() (string, error) {
	fragment, err := s.upstream.Recv()
	if errors.Is(err, io.EOF) {
		if s.isCancelled() {
			return "", ErrReplyCancelled
		}
		s.finalize(metrics.FinalizeCompleted)
		return "", io.EOF
	}
	if err != nil {
		if s.isCancelled() || errors.Is(err, context.Canceled) {
			s.finalize(metrics.FinalizeCancelled)
			return "", ErrReplyCancelled
		}
		s.finalize(metrics.FinalizeError)
		s.logger.Error("chat.stream.read_error",
			zap.String("conversation_id", s.conversationID),
			zap.Error(err))
		return "", fmt.Errorf("failed to read reply: %w", err)
	}

	s.mu.Lock()
	if !s.finalized {
		s.reply.WriteString(fragment)
	}
	s.mu.Unlock()
	return fragment, nil
}

// Read adapts the stream to io.Reader.
func (s *ReplyStream) Read(p []byte) (int, error) {
	for s.pending == "" {
		fragment, err := s.Next()
		if err != nil {
			return 0, err
		}
		s.pending = fragment
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Cancel finalizes the reply with whatever has been received, then closes
// the provider stream. Close failures are logged. Safe to call more than once
// and concurrently with Next.
func (s *ReplyStream) Cancel() {
	s.mu.Lock()
	first := !s.cancelled
	s.cancelled = true
	s.mu.Unlock()

	s.finalize(metrics.FinalizeCancelled)

	if !first {
		return
	}
	if err := s.upstream.Close(); err != nil {
		s.logger.Warn("chat.stream.cancel_error",
			zap.String("conversation_id", s.conversationID),
			zap.Error(err))
	}
}

// Close releases the provider stream. After a completed reply it only closes
// the upstream; otherwise it behaves like Cancel.
func (s *ReplyStream) Close() error {
	s.Cancel()
	return nil
}

// Reply returns the text accumulated so far.
func (s *ReplyStream) Reply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply.String()
}

func (s *ReplyStream) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *ReplyStream) finalize(reason string) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	text := strings.TrimSpace(s.reply.String())
	s.mu.Unlock()

	if text != "" {
		s.conversations.Append(s.conversationID, domain.NewConversationMessage(domain.ConversationRoleAssistant, text))
	}
	s.metrics.ReplyFinalizedWith(reason, len(text))
	s.logger.Debug("chat.reply.finalized",
		zap.String("conversation_id", s.conversationID),
		zap.String("reason", reason),
		zap.Int("characters", len(text)))
}
