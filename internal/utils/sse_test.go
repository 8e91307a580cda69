package utils

import (
	"io"
	"strings"
	"testing"
)

func TestSSEScanner_SingleEvent(t *testing.T) {
	input := "data: {\"hello\":\"world\"}\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	payload, err := scanner.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if payload != `{"hello":"world"}` {
		t.Errorf("unexpected payload: %q", payload)
	}

	if _, err := scanner.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last event, got %v", err)
	}
}

func TestSSEScanner_MultipleEvents(t *testing.T) {
	input := "data: one\n\ndata: two\n\ndata: three\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	var payloads []string
	for {
		payload, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		payloads = append(payloads, payload)
	}

	want := []string{"one", "two", "three"}
	if len(payloads) != len(want) {
		t.Fatalf("expected %d payloads, got %d", len(want), len(payloads))
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("payload %d: expected %q, got %q", i, want[i], payloads[i])
		}
	}
}

func TestSSEScanner_DoneSentinel(t *testing.T) {
	input := "data: first\n\ndata: [DONE]\n\ndata: never\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	payload, err := scanner.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if payload != "first" {
		t.Errorf("expected %q, got %q", "first", payload)
	}

	if _, err := scanner.Next(); err != io.EOF {
		t.Errorf("expected io.EOF at [DONE] sentinel, got %v", err)
	}
}

func TestSSEScanner_SkipsCommentsAndBlankLines(t *testing.T) {
	input := ": keep-alive comment\n\n\ndata: real\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	payload, err := scanner.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if payload != "real" {
		t.Errorf("expected %q, got %q", "real", payload)
	}
}

func TestSSEScanner_MultiLineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	payload, err := scanner.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if payload != "line1\nline2" {
		t.Errorf("expected joined payload, got %q", payload)
	}
}

func TestSSEScanner_TrailingDataWithoutBlankLine(t *testing.T) {
	input := "data: trailing"
	scanner := NewSSEScanner(strings.NewReader(input))

	payload, err := scanner.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if payload != "trailing" {
		t.Errorf("expected %q, got %q", "trailing", payload)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 5, "hello... (truncated, total: 11 chars)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateString(tc.input, tc.maxLen)
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
