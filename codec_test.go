package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	inputs := []string{
		"hello",
		"",
		"exactly sixteen!",
		"多行中文正文\n第二行",
		"a much longer body that spans several cipher blocks and then some more",
	}

	codecs := map[string]*Codec{
		"fixed":      NewDefaultCodec(),
		"perChapter": NewCodec("ZUz8wDVDCiZ5GcTMomVmcWk2a6d9Sb1L"),
	}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			for _, input := range inputs {
				encoded := codec.Encrypt([]byte(input))
				got, err := codec.Decrypt(encoded)
				if err != nil {
					t.Fatalf("Decrypt(%q) returned error: %v", input, err)
				}
				if string(got) != input {
					t.Errorf("round trip mismatch\ngot:  %q\nwant: %q", got, input)
				}
			}
		})
	}
}

func TestEncryptReference(t *testing.T) {
	// AES-256-CBC with the fixed derived key and the protocol's zero IV.
	const want = "u1lusAo/1RCFVbb2tfaq2Q=="

	got := NewDefaultCodec().Encrypt([]byte("hello"))
	if got != want {
		t.Errorf("Encrypt(\"hello\") mismatch\ngot:  %s\nwant: %s", got, want)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	plaintext := "the original chapter body"
	encoded := NewDefaultCodec().Encrypt([]byte(plaintext))

	got, err := NewCodec("not-the-right-secret").Decrypt(encoded)
	if err == nil && string(got) == plaintext {
		t.Errorf("decrypting with the wrong key returned the original plaintext")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	plaintext := "tamper detection body"
	encoded := NewDefaultCodec().Encrypt([]byte(plaintext))

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("failed to decode test ciphertext: %v", err)
	}
	raw[0] ^= 0xff

	got, err := NewDefaultCodec().Decrypt(base64.StdEncoding.EncodeToString(raw))
	if err == nil && bytes.Equal(got, []byte(plaintext)) {
		t.Errorf("decrypting tampered ciphertext returned the original plaintext")
	}
}

func TestDecryptMalformedInput(t *testing.T) {
	codec := NewDefaultCodec()

	cases := map[string]string{
		"invalid base64":    "!!!not-base64!!!",
		"empty":             "",
		"not block aligned": base64.StdEncoding.EncodeToString([]byte("short")),
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decrypt(input)
			if err == nil {
				t.Fatalf("Decrypt(%q) succeeded, expected a decode error", input)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("expected DecodeError, got %T: %v", err, err)
			}
		})
	}
}
