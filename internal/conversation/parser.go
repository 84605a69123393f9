package conversation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// maxLineSize bounds a single transcript line.
const maxLineSize = 10 * 1024 * 1024 // 10MB

// maxStoredErrors limits the parse errors kept in a ParseResult.
const maxStoredErrors = 10

// Parser decodes JSONL transcripts.
type Parser struct{}

// NewParser creates a new transcript parser.
func NewParser() *Parser {
	return &Parser{}
}

// jsonlLine covers both accepted line shapes.
type jsonlLine struct {
	// Flat shape.
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`

	// Nested shape.
	Type    string          `json:"type,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// nestedMessage is the "message" object of the nested shape.
type nestedMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a structured content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseResult contains turns and any errors encountered during parsing.
type ParseResult struct {
	Turns      []Turn
	ErrorCount int
	Errors     []ParseError
}

// ParseError represents a parsing error at a specific line.
type ParseError struct {
	Line  int
	Error string
}

// ParseFile reads a JSONL transcript from disk.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer file.Close()
	return p.Parse(file)
}

// Parse reads JSONL turns from r. Malformed lines are recorded in the result
// and skipped rather than failing the whole transcript.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	result := &ParseResult{
		Turns:  make([]Turn, 0),
		Errors: make([]ParseError, 0),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var jl jsonlLine
		if err := json.Unmarshal(line, &jl); err != nil {
			result.addError(lineNum, fmt.Sprintf("JSON parse error: %v", err))
			continue
		}

		turn, ok, err := p.parseLine(jl)
		if err != nil {
			result.addError(lineNum, fmt.Sprintf("turn parse error: %v", err))
			continue
		}
		if ok {
			result.Turns = append(result.Turns, turn)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning transcript: %w", err)
	}

	return result, nil
}

func (r *ParseResult) addError(line int, msg string) {
	r.ErrorCount++
	if len(r.Errors) < maxStoredErrors {
		r.Errors = append(r.Errors, ParseError{Line: line, Error: msg})
	}
}

// parseLine converts one decoded line into a Turn. ok is false for lines that
// carry no conversational text (tool results, summaries, empty messages).
func (p *Parser) parseLine(jl jsonlLine) (Turn, bool, error) {
	var (
		role    string
		content string
		err     error
	)

	switch {
	case len(jl.Message) > 0:
		role = jl.Type
		content, role, err = parseNested(jl.Message, role)
	case jl.Role != "":
		role = jl.Role
		content, err = parseContent(jl.Content)
	default:
		return Turn{}, false, nil
	}
	if err != nil {
		return Turn{}, false, err
	}

	r := Role(strings.ToLower(role))
	if r != RoleUser && r != RoleAssistant && r != RoleSystem {
		return Turn{}, false, nil
	}
	if strings.TrimSpace(content) == "" {
		return Turn{}, false, nil
	}

	return Turn{
		Role:      r,
		Content:   content,
		Timestamp: parseTimestamp(jl.Timestamp),
	}, true, nil
}

// parseNested decodes the "message" field. It may be a bare string or an
// object whose role overrides the line type.
func parseNested(raw json.RawMessage, role string) (string, string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, role, nil
	}

	var nm nestedMessage
	if err := json.Unmarshal(raw, &nm); err != nil {
		return "", role, fmt.Errorf("decoding message: %w", err)
	}
	if nm.Role != "" {
		role = nm.Role
	}
	content, err := parseContent(nm.Content)
	return content, role, err
}

// parseContent accepts a string or an array of content blocks, keeping only
// text blocks.
func parseContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", fmt.Errorf("decoding content: %w", err)
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
