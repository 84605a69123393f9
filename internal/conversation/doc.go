// Package conversation scores whole conversations rather than single messages.
//
// A pattern that never clears the detection bar in one message may be obvious
// across several. The Analyzer pulls the most recent user-authored turns from
// a TurnSource, joins them, and runs the detector over the result.
//
// # Architecture
//
// The main components are:
//   - TurnSource: Supplies recent turns for a conversation
//   - JSONLSource: Reads transcripts stored as <dir>/<conversation_id>.jsonl
//   - MemorySource: Thread-safe in-memory transcripts for tests and embedding
//   - Parser: Decodes JSONL transcripts in either the flat or the nested shape
//   - Analyzer: Applies the turn window and delegates to the detector
//
// # Usage
//
//	source := conversation.NewJSONLSource("/var/lib/insightd/transcripts", logger)
//	analyzer := conversation.NewAnalyzer(source, detector.New(nil), logger)
//
//	results, err := analyzer.Analyze(ctx, "conv-123")
//	if errors.Is(err, conversation.ErrConversationNotFound) {
//	    // 404
//	}
//
// # Transcript Format
//
// Each line is one JSON object. Two shapes are accepted:
//
//	{"role":"user","content":"...","timestamp":"2025-01-01T10:00:00Z"}
//	{"type":"user","message":{"role":"user","content":[{"type":"text","text":"..."}]}}
//
// Malformed lines are counted and skipped. Conversation IDs are restricted to
// a safe character set so they can never name a file outside the transcript
// directory.
package conversation
