package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const tokenFileName = ".hbooker"

// TokenStore persists the session token as fixed-key ciphertext on disk and
// decides whether a stored token can be reused for this run.
type TokenStore struct {
	path   string
	codec  *Codec
	logger Logger
}

func NewTokenStore(logger Logger) *TokenStore {
	return &TokenStore{
		path:   tokenFilePath(),
		codec:  NewDefaultCodec(),
		logger: logger,
	}
}

func tokenFilePath() string {
	if override := GetTokenPath(); override != "" {
		return override
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, tokenFileName)
}

// Load returns a usable token, or nil when the caller has to log in again.
// A missing, corrupt or stale token file is never fatal: the run degrades to
// asking for credentials.
func (s *TokenStore) Load(client *HBClient) *Token {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Log("Login required to access this resource")
		return nil
	}

	token, err := s.decode(raw)
	if err != nil {
		s.logger.Log("Failed to read local user information, please enter again")
		return nil
	}

	info, err := client.GetMyInfo(*token)
	if err != nil {
		s.logger.Log("Token validation failed: %v", err)
		return nil
	}
	if info.LoginExpired {
		s.logger.Log("Login expired, please log in again")
		return nil
	}

	s.logger.Log("Use existing login token, nick name: %s", info.NickName)
	return token
}

func (s *TokenStore) decode(raw []byte) (*Token, error) {
	plaintext, err := s.codec.Decrypt(string(raw))
	if err != nil {
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, &DecodeError{Op: "token file", Err: err}
	}
	if token.Account == "" || token.LoginToken == "" {
		return nil, fmt.Errorf("token file is incomplete")
	}
	return &token, nil
}

// Save writes the token through to disk, replacing any previous file.
func (s *TokenStore) Save(token Token) error {
	plaintext, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(s.codec.Encrypt(plaintext)), 0o600)
}
