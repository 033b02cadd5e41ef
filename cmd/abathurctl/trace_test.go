package main

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 7, "this is..."},
		{"", 5, ""},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.n); got != tt.expected {
			t.Errorf("truncate(%q, %d) = %q; want %q", tt.input, tt.n, got, tt.expected)
		}
	}
}
