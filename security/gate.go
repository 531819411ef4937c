// Package security validates execution requests before they reach a
// subprocess. The gate is a pure predicate plus reason code: it never
// executes anything, and a request it rejects is never spawned.
//
// Two checks are enforced:
//   - the requested script path must resolve under one of the
//     allow-listed root directories (defeats ../ traversal), and
//   - string parameter values must be free of shell metacharacters,
//     unless the bridge is configured to pass them through (the
//     argument vector makes them structurally inert either way; the
//     check guards scripts that re-interpret their inputs).
//
// Every rejection is logged for audit, with sensitive parameter
// values redacted.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/m365kit/scriptbridge/codec"
)

// Rejection reason codes.
const (
	ReasonPathEscape      = "path-escape"
	ReasonUnsafeParameter = "unsafe-parameter"
)

// shellMetachars are the characters with special meaning to a command
// interpreter: quotes, backticks, pipe, semicolon, ampersand, and
// redirection operators.
const shellMetachars = "`'\"|;&<>"

// Outcome is the result of validating one request.
type Outcome struct {
	// OK is true when the request may proceed to execution.
	OK bool

	// Reason is the rejection reason code; empty when OK.
	Reason string

	// Detail describes the rejection for diagnostics; already redacted.
	Detail string

	// ResolvedPath is the absolute, cleaned script path. Set only when
	// the path check passed; execution must use this path, not the
	// caller's original.
	ResolvedPath string
}

// Gate validates script paths and parameters against the configured
// security boundary. Construct once; the allow-list is immutable.
type Gate struct {
	roots          []string
	allowMetachars bool
	logger         *slog.Logger
}

// NewGate creates a gate over the given allow-listed root directories.
// Roots must be absolute; they are cleaned once here. Containment is
// checked lexically, so roots must not contain symlinks pointing
// outside the boundary.
func NewGate(roots []string, allowMetachars bool, logger *slog.Logger) (*Gate, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("security: at least one allow-listed root is required")
	}
	cleaned := make([]string, len(roots))
	for i, root := range roots {
		if !filepath.IsAbs(root) {
			return nil, fmt.Errorf("security: root %q is not absolute", root)
		}
		cleaned[i] = filepath.Clean(root)
	}
	return &Gate{
		roots:          cleaned,
		allowMetachars: allowMetachars,
		logger:         logger,
	}, nil
}

// Validate checks a script path and its parameters. It resolves the
// path to an absolute cleaned form and verifies it is a descendant of
// an allow-listed root, then scans string parameter values for shell
// metacharacters.
func (g *Gate) Validate(scriptPath string, params []codec.Param) Outcome {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		g.logRejection(ReasonPathEscape, scriptPath, "")
		return Outcome{Reason: ReasonPathEscape, Detail: fmt.Sprintf("cannot resolve path: %v", err)}
	}
	abs = filepath.Clean(abs)

	if !g.underRoot(abs) {
		g.logRejection(ReasonPathEscape, abs, "")
		return Outcome{Reason: ReasonPathEscape, Detail: fmt.Sprintf("path %s is outside the allow-listed roots", abs)}
	}

	if !g.allowMetachars {
		for _, p := range params {
			if offending, found := scanValue(p.Value); found {
				detail := fmt.Sprintf("parameter %q contains shell metacharacter %q", p.Name, offending)
				if p.Sensitive {
					detail = fmt.Sprintf("sensitive parameter %q contains a shell metacharacter", p.Name)
				}
				g.logRejection(ReasonUnsafeParameter, abs, p.Name)
				return Outcome{Reason: ReasonUnsafeParameter, Detail: detail}
			}
		}
	}

	return Outcome{OK: true, ResolvedPath: abs}
}

// underRoot reports whether abs is the same as, or a descendant of,
// any allow-listed root. Purely lexical.
func (g *Gate) underRoot(abs string) bool {
	for _, root := range g.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." {
			continue // the root itself is a directory, not a script
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// scanValue recursively scans a parameter value for shell
// metacharacters. Strings inside lists and nested mappings are scanned
// too: they reach the script inside a JSON blob, but the script may
// feed them to a shell of its own.
func scanValue(value any) (offending string, found bool) {
	switch v := value.(type) {
	case string:
		if idx := strings.IndexAny(v, shellMetachars); idx != -1 {
			return string(v[idx]), true
		}
	case []any:
		for _, item := range v {
			if off, ok := scanValue(item); ok {
				return off, true
			}
		}
	case map[string]any:
		for _, item := range v {
			if off, ok := scanValue(item); ok {
				return off, true
			}
		}
	}
	return "", false
}

// logRejection records an audit entry for a rejected request. The
// parameter value itself is never logged, only its name.
func (g *Gate) logRejection(reason, path, paramName string) {
	attrs := []any{
		slog.String("reason", reason),
		slog.String("script", path),
	}
	if paramName != "" {
		attrs = append(attrs, slog.String("parameter", paramName))
	}
	g.logger.Warn("request rejected", attrs...)
}
