package main

import (
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// NewClient builds an HTTP client with the default app profile. Each fetch
// worker owns one client; clients are never shared across workers.
func NewClient(logger tls_client.Logger) (tls_client.HttpClient, error) {
	return NewClientWithProfile(logger, DefaultProfile.TLSProfile)
}

func NewClientWithProfile(logger tls_client.Logger, profile profiles.ClientProfile) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = tls_client.NewNoopLogger()
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(30),
		tls_client.WithClientProfile(profile),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
	}

	return tls_client.NewHttpClient(logger, options...)
}
