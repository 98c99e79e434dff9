package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
)

const (
	hbBaseURL = "https://app.hbooker.com"

	hbMyInfoURL         = hbBaseURL + "/reader/get_my_info"
	hbUseGeetestURL     = hbBaseURL + "/signup/use_geetest"
	hbGeetestInfoURL    = hbBaseURL + "/signup/geetest_first_register"
	hbLoginURL          = hbBaseURL + "/signup/login"
	hbBookInfoURL       = hbBaseURL + "/book/get_info_by_id"
	hbVolumesURL        = hbBaseURL + "/chapter/get_updated_chapter_by_division_new"
	hbChapterCommandURL = hbBaseURL + "/chapter/get_chapter_cmd"
	hbChapterInfoURL    = hbBaseURL + "/chapter/get_cpt_ifm"
)

// HBClient issues authenticated calls against the hbooker app API. Every
// response body is base64 AES ciphertext; the client decrypts it with the
// fixed key, classifies the envelope and hands the payload to an extractor.
type HBClient struct {
	client tls_client.HttpClient
	codec  *Codec
	scheme CodeScheme
	logger Logger
}

func NewHBClient(client tls_client.HttpClient, logger Logger) *HBClient {
	return &HBClient{
		client: client,
		codec:  NewDefaultCodec(),
		scheme: hbookerScheme,
		logger: logger,
	}
}

// doRequest executes an HTTP request and logs the request URL and response
// status code.
func (h *HBClient) doRequest(req *http.Request) (*http.Response, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Log("%s %s -> error: %v", req.Method, req.URL.Path, err)
		return nil, err
	}
	h.logger.Log("%s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
	return resp, nil
}

// post sends a form-encoded request with the fixed app identifiers attached
// and returns the decrypted plaintext JSON.
func (h *HBClient) post(callURL string, fields url.Values) ([]byte, error) {
	fields.Set("app_version", appVersion)
	fields.Set("device_token", deviceToken)

	req, err := http.NewRequest(http.MethodPost, callURL, strings.NewReader(fields.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header = http.Header{
		"User-Agent":   {appUserAgent},
		"Content-Type": {"application/x-www-form-urlencoded"},
		"Connection":   {"keep-alive"},
	}

	resp, err := h.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, &TransportError{Status: resp.StatusCode, URL: callURL}
	}

	return h.codec.Decrypt(strings.TrimSpace(string(body)))
}

// call posts, decrypts and classifies, returning the success payload.
func (h *HBClient) call(callURL string, fields url.Values) (json.RawMessage, error) {
	plaintext, err := h.post(callURL, fields)
	if err != nil {
		return nil, err
	}
	return classify(plaintext, h.scheme)
}

func tokenFields(token Token) url.Values {
	return url.Values{
		"account":     {token.Account},
		"login_token": {token.LoginToken},
	}
}

// GetMyInfo is the lightweight who-am-I call used to validate a stored token.
// LoginExpired is set instead of an error when the provider signals expiry.
func (h *HBClient) GetMyInfo(token Token) (UserInfo, error) {
	data, err := h.call(hbMyInfoURL, tokenFields(token))
	if errors.Is(err, ErrSessionExpired) {
		return UserInfo{LoginExpired: true}, nil
	}
	if err != nil {
		return UserInfo{}, err
	}
	return parseUserInfo(data)
}

// UseGeetest asks whether the provider currently requires human verification
// before login.
func (h *HBClient) UseGeetest() (bool, error) {
	data, err := h.call(hbUseGeetestURL, url.Values{})
	if err != nil {
		return false, err
	}
	return parseUseGeetest(data)
}

// GetGeetestInfo fetches a fresh challenge descriptor for the given login
// name. The descriptor is single-use.
func (h *HBClient) GetGeetestInfo(loginName string, timestamp int64) (GeetestInfo, error) {
	query := url.Values{
		"t":       {strconv.FormatInt(timestamp, 10)},
		"user_id": {loginName},
	}
	callURL := hbGeetestInfoURL + "?" + query.Encode()

	req, err := http.NewRequest(http.MethodGet, callURL, nil)
	if err != nil {
		return GeetestInfo{}, err
	}
	req.Header = http.Header{
		"User-Agent": {gtUserAgent},
		"Connection": {"keep-alive"},
	}

	resp, err := h.doRequest(req)
	if err != nil {
		return GeetestInfo{}, err
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		return GeetestInfo{}, err
	}
	if resp.StatusCode != 200 {
		return GeetestInfo{}, &TransportError{Status: resp.StatusCode, URL: hbGeetestInfoURL}
	}

	// This endpoint answers in the clear; only the envelope applies.
	data, err := classify(body, h.scheme)
	if err != nil {
		return GeetestInfo{}, err
	}
	return parseGeetestInfo(data)
}

// Login authenticates with name and password. validation carries the solved
// captcha pair and may be nil when the provider does not require one.
func (h *HBClient) Login(loginName, password string, validation *ValidationResult) (LoginInfo, error) {
	fields := url.Values{
		"login_name": {loginName},
		"passwd":     {password},
	}
	if validation != nil {
		fields.Set("geetest_challenge", validation.Challenge)
		fields.Set("geetest_validate", validation.Validate)
		fields.Set("geetest_seccode", validation.Validate+"|jordan")
	}

	data, err := h.call(hbLoginURL, fields)
	if errors.Is(err, ErrSessionExpired) {
		return LoginInfo{}, fmt.Errorf("failed to login")
	}
	if err != nil {
		return LoginInfo{}, err
	}
	return parseLoginInfo(data)
}

func (h *HBClient) GetBookInfo(token Token, bookID string) (BookInfo, error) {
	fields := tokenFields(token)
	fields.Set("book_id", bookID)

	data, err := h.call(hbBookInfoURL, fields)
	if err != nil {
		return BookInfo{}, err
	}
	return parseBookInfo(data)
}

// GetVolumes fetches the table of contents, already filtered down to valid
// and authorized chapters.
func (h *HBClient) GetVolumes(token Token, bookID string) ([]Volume, error) {
	fields := tokenFields(token)
	fields.Set("book_id", bookID)

	data, err := h.call(hbVolumesURL, fields)
	if err != nil {
		return nil, err
	}
	return parseVolumes(data, h.logger)
}

// GetChapterCommand fetches the per-chapter key material required to decrypt
// that chapter's body. A command is never reused across chapters.
func (h *HBClient) GetChapterCommand(token Token, chapterID uint64) (string, error) {
	fields := tokenFields(token)
	fields.Set("chapter_id", strconv.FormatUint(chapterID, 10))

	data, err := h.call(hbChapterCommandURL, fields)
	if err != nil {
		return "", err
	}
	return parseChapterCommand(data)
}

// GetChapterText fetches a chapter body and decrypts it with the key derived
// from command.
func (h *HBClient) GetChapterText(token Token, chapterID uint64, command string) (string, error) {
	fields := tokenFields(token)
	fields.Set("chapter_id", strconv.FormatUint(chapterID, 10))
	fields.Set("chapter_command", command)

	data, err := h.call(hbChapterInfoURL, fields)
	if err != nil {
		return "", err
	}
	encrypted, err := parseChapterText(data)
	if err != nil {
		return "", err
	}

	plaintext, err := NewCodec(command).Decrypt(encrypted)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GetImage fetches raw image bytes with the app's media user agent.
func (h *HBClient) GetImage(imageURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = http.Header{
		"User-Agent": {rssUserAgent},
		"Connection": {"keep-alive"},
	}

	resp, err := h.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, &TransportError{Status: resp.StatusCode, URL: imageURL}
	}
	return body, nil
}
