package lsp

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestReadWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	payloads := []string{`{"a":1}`, `{"b":"😀"}`}
	for _, p := range payloads {
		if err := writeMessage(&buf, []byte(p)); err != nil {
			t.Fatalf("writeMessage: %v", err)
		}
	}
	r := bufio.NewReader(&buf)
	for _, want := range payloads {
		got, err := readMessage(r)
		if err != nil {
			t.Fatalf("readMessage: %v", err)
		}
		if string(got) != want {
			t.Errorf("payload: got %q, want %q", got, want)
		}
	}
}

func TestReadMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing length", "Content-Type: x\r\n\r\n{}"},
		{"bad length", "Content-Length: abc\r\n\r\n{}"},
		{"short body", "Content-Length: 10\r\n\r\n{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readMessage(bufio.NewReader(strings.NewReader(tt.input))); err == nil {
				t.Errorf("readMessage(%q): expected error", tt.input)
			}
		})
	}
}

func TestUTF16Column(t *testing.T) {
	tests := []struct {
		line    string
		byteCol int
		want    int
	}{
		{"abc", 2, 2},
		{"é x", 3, 2},
		{"😀x", 4, 2},
		{"😀x", 5, 3},
		{"abc", 10, 3},
	}
	for _, tt := range tests {
		if got := utf16Column(tt.line, tt.byteCol); got != tt.want {
			t.Errorf("utf16Column(%q, %d): got %d, want %d", tt.line, tt.byteCol, got, tt.want)
		}
	}
}

func TestLineAt(t *testing.T) {
	text := "one\r\ntwo\nthree"
	tests := []struct {
		n    int
		want string
	}{
		{0, "one"},
		{1, "two"},
		{2, "three"},
		{3, ""},
	}
	for _, tt := range tests {
		if got := lineAt(text, tt.n); got != tt.want {
			t.Errorf("lineAt(%d): got %q, want %q", tt.n, got, tt.want)
		}
	}
}
