package main

import (
	"github.com/bogdanfinn/tls-client/profiles"
)

// Fixed identity of the provider's Android app. Every authenticated call
// carries appVersion and deviceToken; the user agents are per call family.
const (
	appVersion  = "2.9.290"
	deviceToken = "ciweimao_"

	appUserAgent = "Android  com.kuangxiangciweimao.novel  2.9.290,OnePlus, ONEPLUS A3010, 25, 7.1.1"
	rssUserAgent = "Dalvik/2.1.0 (Linux; U; Android 7.1.1; ONEPLUS A3010 Build/NMF26F)"
	gtUserAgent  = "okhttp/4.8.0"
)

// AppProfile bundles the TLS fingerprint the provider's app presents with the
// user agents its HTTP stack sends.
type AppProfile struct {
	TLSProfile profiles.ClientProfile
	UserAgent  string
}

// DefaultProfile mimics the okhttp client embedded in the Android app.
var DefaultProfile = &AppProfile{
	TLSProfile: profiles.Okhttp4Android13,
	UserAgent:  appUserAgent,
}
