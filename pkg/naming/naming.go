// Package naming implements the deterministic mapping between human-visible
// server and tool identifiers and the short opaque names exposed to agents.
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// TokenLength is the fixed length of a server hash token.
const TokenLength = 6

// InternalPrefix marks a tool name as synthesized by the broker itself
// rather than routed to a backend server.
const InternalPrefix = "cubicler_"

var (
	snakeBoundary  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonIdentifier  = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	multiUnderscore = regexp.MustCompile(`_+`)
)

// Hash returns the stable 6-character hex token for a server, derived from
// its identifier and its URL or command. Identical inputs always produce
// the identical token; the token carries no information an agent could use
// to recover the identifier or URL.
func Hash(serverIdentifier, urlOrCommand string) string {
	sum := sha256.Sum256([]byte(serverIdentifier + "||" + urlOrCommand))
	return hex.EncodeToString(sum[:])[:TokenLength]
}

// Snake converts an arbitrary identifier into snake_case. It is idempotent:
// Snake(Snake(x)) == Snake(x).
func Snake(name string) string {
	s := snakeBoundary.ReplaceAllString(name, "${1}_${2}")
	s = nonIdentifier.ReplaceAllString(s, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return strings.ToLower(s)
}

// ToolName builds the agent-visible external tool name from a server token
// and a function name. The function name is snake-cased before joining.
func ToolName(token, function string) string {
	return token + "_" + Snake(function)
}

// InternalToolName builds the agent-visible name for a broker-synthesized
// tool.
func InternalToolName(name string) string {
	return InternalPrefix + Snake(name)
}

// Kind distinguishes the two shapes a parsed tool name can take.
type Kind int

const (
	// KindInternal identifies a tool synthesized by the broker.
	KindInternal Kind = iota
	// KindExternal identifies a tool routed to a backend server by hash token.
	KindExternal
)

// Parsed is the result of splitting an agent-visible tool name into its
// routing components.
type Parsed struct {
	Kind     Kind
	Name     string // set when Kind == KindInternal
	Token    string // set when Kind == KindExternal
	Function string // set when Kind == KindExternal; the snake-cased function
}

// MalformedToolNameError reports a tool name that cannot be parsed into
// either internal or external form.
type MalformedToolNameError struct {
	Name string
}

func (e *MalformedToolNameError) Error() string {
	return "malformed tool name: " + e.Name
}

// Parse splits an agent-visible tool name into its routing components.
// Internal tools are recognized by the reserved "cubicler_" prefix.
// External tools must have the form "{6-char-token}_{function}"; the first
// underscore separates the token from the function, and the token must be
// exactly TokenLength characters.
func Parse(name string) (Parsed, error) {
	if strings.HasPrefix(name, InternalPrefix) {
		return Parsed{Kind: KindInternal, Name: strings.TrimPrefix(name, InternalPrefix)}, nil
	}

	idx := strings.Index(name, "_")
	if idx < 0 {
		return Parsed{}, &MalformedToolNameError{Name: name}
	}
	token := name[:idx]
	function := name[idx+1:]
	if len(token) != TokenLength || function == "" {
		return Parsed{}, &MalformedToolNameError{Name: name}
	}

	return Parsed{Kind: KindExternal, Token: token, Function: function}, nil
}
