package main

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// defaultSecret is the static secret embedded in the provider's app. The key
// derived from it decrypts every response envelope and the local token file.
const defaultSecret = "zG2nSeEfSHfvTCHy5LCcqtBbQehKNLXn"

// Codec encrypts and decrypts the provider's AES-256-CBC envelopes.
// The protocol uses an all-zero IV for every operation; this is a known
// weakness of the upstream protocol and is reproduced faithfully.
type Codec struct {
	key []byte
}

// NewCodec derives a 32-byte key from secret via SHA-256. The derivation
// happens once; the codec is safe for concurrent use.
func NewCodec(secret string) *Codec {
	key := sha256.Sum256([]byte(secret))
	return &Codec{key: key[:]}
}

// NewDefaultCodec returns the fixed-key codec for envelopes and the token file.
func NewDefaultCodec() *Codec {
	return NewCodec(defaultSecret)
}

var zeroIV [aes.BlockSize]byte

// Encrypt pads plaintext with PKCS#7, encrypts it and returns standard base64.
func (c *Codec) Encrypt(plaintext []byte) string {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		// Key is always 32 bytes by construction.
		panic(err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV[:]).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. Malformed base64, ciphertext that is not a
// multiple of the block size, and bad padding all fail explicitly; nothing
// is silently truncated.
func (c *Codec) Decrypt(encoded string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Op: "base64", Err: err}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecodeError{Op: "ciphertext", Err: fmt.Errorf("length %d is not a positive multiple of the block size", len(ciphertext))}
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		panic(err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV[:]).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, &DecodeError{Op: "padding", Err: err}
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
