package main

import "os"

// Build-time variables - inject via ldflags
// Example: go build -ldflags "-X main.account=NAME -X main.password=PASS"
var (
	account  string // -X main.account=...
	password string // -X main.password=...
)

// GetAccount returns the login name (build-time or env fallback).
func GetAccount() string {
	if account != "" {
		return account
	}
	return os.Getenv("HBOOK_ACCOUNT")
}

// GetPassword returns the login password (build-time or env fallback).
func GetPassword() string {
	if password != "" {
		return password
	}
	return os.Getenv("HBOOK_PASSWORD")
}

// GetTokenPath returns an override for the token file location, if any.
func GetTokenPath() string {
	return os.Getenv("HBOOK_TOKEN_FILE")
}
