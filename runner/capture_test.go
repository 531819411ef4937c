// capture_test.go tests the bounded output writer.
package runner

import (
	"strings"
	"testing"
)

func TestCapWriter_UnderCap(t *testing.T) {
	w := newCapWriter(100)
	w.Write([]byte("hello"))
	if w.String() != "hello" {
		t.Errorf("got %q", w.String())
	}
	if w.Truncated() {
		t.Error("must not be truncated under the cap")
	}
}

func TestCapWriter_ExactCap(t *testing.T) {
	w := newCapWriter(5)
	w.Write([]byte("hello"))
	if w.String() != "hello" || w.Truncated() {
		t.Errorf("exact-cap write should be retained untruncated, got %q truncated=%v",
			w.String(), w.Truncated())
	}
}

func TestCapWriter_SplitWriteAtCap(t *testing.T) {
	w := newCapWriter(8)
	w.Write([]byte("hello"))
	w.Write([]byte("world"))
	if w.String() != "hellowor" {
		t.Errorf("got %q, want %q", w.String(), "hellowor")
	}
	if !w.Truncated() {
		t.Error("expected truncation")
	}
}

func TestCapWriter_WritesPastCapDiscarded(t *testing.T) {
	w := newCapWriter(3)
	w.Write([]byte("abcdef"))
	w.Write([]byte("ghi"))
	if w.String() != "abc" {
		t.Errorf("got %q, want %q", w.String(), "abc")
	}
	if !w.Truncated() {
		t.Error("expected truncation")
	}
}

func TestCapWriter_NeverErrors(t *testing.T) {
	w := newCapWriter(1)
	n, err := w.Write([]byte("abcdef"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	// The full length must be acknowledged so the pipe keeps draining.
	if n != 6 {
		t.Errorf("n = %d, want 6", n)
	}
}

func TestCapWriter_NoCap(t *testing.T) {
	w := newCapWriter(0)
	w.Write([]byte(strings.Repeat("x", 10000)))
	if len(w.String()) != 10000 {
		t.Errorf("length = %d, want 10000", len(w.String()))
	}
	if w.Truncated() {
		t.Error("uncapped writer must never report truncation")
	}
}
