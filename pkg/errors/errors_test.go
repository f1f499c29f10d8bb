package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := MalformedEdgeKey("A->", "sink activity is empty")

	got := err.Error()
	want := "[E104] malformed edge key (key=A->, reason=sink activity is empty)"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, CodeQueryFailed, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestQueryFailed_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := QueryFailed("classify_continuation", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !strings.HasSuffix(err.Error(), ": connection reset") {
		t.Errorf("Error() = %q, want cause suffix", err.Error())
	}
	if GetCode(err) != CodeQueryFailed {
		t.Errorf("GetCode() = %s, want %s", GetCode(err), CodeQueryFailed)
	}
}

func TestIsCode_Chain(t *testing.T) {
	inner := QueryFailed("q", fmt.Errorf("boom"))
	outer := Wrap(inner, CodeClassificationFailed, "pass failed")
	wrapped := fmt.Errorf("step: %w", outer)

	tests := []struct {
		code Code
		want bool
	}{
		{CodeClassificationFailed, true},
		{CodeQueryFailed, true},
		{CodeCacheWriteFailed, false},
	}

	for _, tt := range tests {
		if got := IsCode(wrapped, tt.code); got != tt.want {
			t.Errorf("IsCode(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestError_IsByCode(t *testing.T) {
	a := CacheWriteFailed("x.parquet", fmt.Errorf("disk full"))
	if !errors.Is(a, New(CodeCacheWriteFailed, "")) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(a, New(CodeCacheReadFailed, "")) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestMultiError_Combined(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("empty MultiError should combine to nil")
	}

	first := fmt.Errorf("first")
	m.Add(first)
	m.Add(nil)
	if m.Combined() != first {
		t.Error("single error should be returned as-is")
	}

	m.Add(fmt.Errorf("second"))
	if !strings.HasPrefix(m.Combined().Error(), "2 errors occurred") {
		t.Errorf("Combined() = %q", m.Combined().Error())
	}
	if !errors.Is(m.Combined(), first) {
		t.Error("errors.Is should see every collected error")
	}
}
