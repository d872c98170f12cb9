package handlers

import (
	"strings"
	"testing"
)

func TestBase64ByteLength(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "no padding",
			input:    "aGVsbG8h", // "hello!"
			expected: 6,
		},
		{
			name:     "one padding char",
			input:    "aGVsbG8=", // "hello"
			expected: 5,
		},
		{
			name:     "two padding chars",
			input:    "aGVsbA==", // "hell"
			expected: 4,
		},
		{
			name:     "data url prefix is ignored",
			input:    "data:image/png;base64,aGVsbG8=",
			expected: 5,
		},
		{
			name:     "empty",
			input:    "",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base64ByteLength(tt.input); got != tt.expected {
				t.Errorf("base64ByteLength(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBase64ByteLength_LargePayload(t *testing.T) {
	// 4 MB of encoded data decodes to ~3 MB; the size check must reject
	// it against a 1 MB cap without decoding.
	encoded := strings.Repeat("AAAA", 1_000_000)
	if got := base64ByteLength(encoded); got != 3_000_000 {
		t.Errorf("base64ByteLength = %d, want 3000000", got)
	}
}

func TestAllowedImageMime(t *testing.T) {
	for _, mime := range []string{"image/jpeg", "image/png", "image/webp"} {
		if _, ok := allowedImageMime[mime]; !ok {
			t.Errorf("%s should be allowed", mime)
		}
	}
	for _, mime := range []string{"image/gif", "image/svg+xml", "text/html", ""} {
		if _, ok := allowedImageMime[mime]; ok {
			t.Errorf("%s should be rejected", mime)
		}
	}
}
