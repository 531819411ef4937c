// request.go defines the caller-facing execution request.
// A request is a value created per call; the bridge never mutates it.
package bridge

import (
	"time"

	"github.com/m365kit/scriptbridge/codec"
	"github.com/m365kit/scriptbridge/decode"
)

// Param is re-exported so callers build requests without importing the
// codec package directly.
type Param = codec.Param

// OutputFormat selects how a script's stdout is decoded.
type OutputFormat = decode.Format

// Supported output formats.
const (
	FormatJSON      = decode.FormatJSON
	FormatDelimited = decode.FormatDelimited
	FormatRaw       = decode.FormatRaw
)

// Request describes one script execution.
type Request struct {
	// ScriptPath is the script to execute. It must resolve under one of
	// the bridge's allow-listed roots.
	ScriptPath string

	// Interpreter optionally names an allow-listed interpreter to run
	// the script through (e.g. "pwsh"). Empty executes the script
	// directly.
	Interpreter string

	// Parameters are the named arguments, in the order the script
	// expects them.
	Parameters []Param

	// OutputFormat selects the decoding strategy. Empty defaults to
	// raw-text.
	OutputFormat OutputFormat

	// Timeout bounds the whole execution: waiting for a pool slot plus
	// the subprocess itself. Zero selects the configured default;
	// values above the configured maximum are clamped.
	Timeout time.Duration

	// Cacheable opts this request into result memoization. Leave false
	// for scripts with side effects that must never be skipped.
	Cacheable bool

	// CacheTTL bounds how long a cached result may be served. Only
	// meaningful when Cacheable is set; zero selects the configured
	// default.
	CacheTTL time.Duration
}
