package conversation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// JSONLSource reads transcripts from <dir>/<conversation_id>.jsonl.
type JSONLSource struct {
	dir    string
	parser *Parser
	logger *zap.Logger
}

// NewJSONLSource creates a source rooted at dir.
func NewJSONLSource(dir string, logger *zap.Logger) *JSONLSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONLSource{
		dir:    dir,
		parser: NewParser(),
		logger: logger,
	}
}

// Path returns the transcript path for a conversation.
func (s *JSONLSource) Path(conversationID string) (string, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, conversationID+".jsonl"), nil
}

// RecentTurns implements TurnSource.
func (s *JSONLSource) RecentTurns(ctx context.Context, conversationID string, role Role, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.Path(conversationID)
	if err != nil {
		return nil, err
	}

	result, err := s.parser.ParseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		return nil, fmt.Errorf("reading transcript %s: %w", conversationID, err)
	}

	if result.ErrorCount > 0 {
		s.logger.Warn("skipped malformed transcript lines",
			zap.String("conversation.id", conversationID),
			zap.Int("error_count", result.ErrorCount),
		)
	}

	return lastN(result.Turns, role, limit), nil
}

// MemorySource holds transcripts in memory. It is safe for concurrent use.
type MemorySource struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{turns: make(map[string][]Turn)}
}

// Append adds turns to the end of a conversation, creating it if needed.
func (s *MemorySource) Append(conversationID string, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[conversationID] = append(s.turns[conversationID], turns...)
}

// Remove deletes a conversation.
func (s *MemorySource) Remove(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, conversationID)
}

// RecentTurns implements TurnSource.
func (s *MemorySource) RecentTurns(ctx context.Context, conversationID string, role Role, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return lastN(turns, role, limit), nil
}

var (
	_ TurnSource = (*JSONLSource)(nil)
	_ TurnSource = (*MemorySource)(nil)
)

// EnsureDir creates the transcript directory with owner-only permissions.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create transcript directory %s: %w", dir, err)
	}
	return nil
}
