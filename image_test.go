package main

import "testing"

func TestParseImageURL(t *testing.T) {
	t.Run("valid img line", func(t *testing.T) {
		url, ok := parseImageURL(`<img src="https://example.com/pic/0001.png" alt="">`)
		if !ok {
			t.Fatal("expected a URL from a valid img line")
		}
		if url != "https://example.com/pic/0001.png" {
			t.Errorf("got %q", url)
		}
	})

	t.Run("missing src", func(t *testing.T) {
		if _, ok := parseImageURL(`<img alt="no source">`); ok {
			t.Error("expected failure for img without src")
		}
	})

	t.Run("not markup", func(t *testing.T) {
		if _, ok := parseImageURL("平凡的一行正文"); ok {
			t.Error("expected failure for plain text")
		}
	})
}

func TestImageExtension(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 16)...)
	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 16)...)
	gif := append([]byte("GIF89a"), make([]byte, 16)...)

	cases := []struct {
		name string
		data []byte
		ext  string
		ok   bool
	}{
		{"png", png, ".png", true},
		{"jpeg", jpeg, ".jpg", true},
		{"gif", gif, ".gif", true},
		{"text is unsupported", []byte("not an image at all, just text"), "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ext, ok := imageExtension(tc.data)
			if ok != tc.ok || ext != tc.ext {
				t.Errorf("imageExtension() = (%q, %v), want (%q, %v)", ext, ok, tc.ext, tc.ok)
			}
		})
	}
}

func TestURLStem(t *testing.T) {
	if got := urlStem("https://example.com/images/abc123.webp"); got != "abc123" {
		t.Errorf("got %q, want abc123", got)
	}

	// A URL with no usable path still yields a non-empty stem.
	if got := urlStem("https://example.com/"); got == "" {
		t.Error("expected a generated stem for a bare URL")
	}
}
