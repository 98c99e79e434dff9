package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestRenderCaptchaPage(t *testing.T) {
	page := renderCaptchaPage(GeetestInfo{
		GT:         "gt-value",
		Challenge:  "challenge-value",
		NewCaptcha: 1,
	})

	for _, want := range []string{`gt: "gt-value"`, `challenge: "challenge-value"`, "new_captcha: true"} {
		if !strings.Contains(page, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
	if strings.Contains(page, "@gt@") || strings.Contains(page, "@challenge@") || strings.Contains(page, "@new_captcha@") {
		t.Error("rendered page still contains placeholders")
	}
}

// scriptedLauncher stands in for the browser: it loads the challenge page and
// the script asset, then reports the solved token on the validate route.
type scriptedLauncher struct {
	t        *testing.T
	validate string
	opened   []string
}

func (l *scriptedLauncher) Open(pageURL string) error {
	l.opened = append(l.opened, pageURL)

	body, err := httpGetBody(pageURL)
	if err != nil {
		return err
	}
	if !strings.Contains(body, "initGeetest") {
		return fmt.Errorf("challenge page not served: %q", body)
	}

	base := pageURL[:strings.LastIndex(pageURL, "/")]
	if _, err := httpGetBody(base + "/geetest.js"); err != nil {
		return err
	}

	confirmation, err := httpGetBody(base + "/validate/" + l.validate)
	if err != nil {
		return err
	}
	if !strings.Contains(confirmation, "Verification is successful") {
		return fmt.Errorf("unexpected validate response: %q", confirmation)
	}
	return nil
}

func httpGetBody(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("GET %s -> %d", url, resp.StatusCode)
	}
	return string(body), nil
}

func TestBrokerCapturesValidateToken(t *testing.T) {
	launcher := &scriptedLauncher{t: t, validate: "tok_abc123"}
	broker := &CaptchaBroker{
		launcher: launcher,
		logger:   &testLogger{},
		addr:     "127.0.0.1:38921",
	}

	info := GeetestInfo{GT: "g", Challenge: "challenge-xyz", NewCaptcha: 1}
	result, err := broker.collect(info)
	if err != nil {
		t.Fatalf("collect returned error: %v", err)
	}

	if result.Challenge != "challenge-xyz" {
		t.Errorf("challenge mismatch: got %q, want %q", result.Challenge, "challenge-xyz")
	}
	if result.Validate != "tok_abc123" {
		t.Errorf("validate mismatch: got %q, want %q", result.Validate, "tok_abc123")
	}
	if len(launcher.opened) != 1 || !strings.HasSuffix(launcher.opened[0], "/captcha") {
		t.Errorf("launcher handed the wrong URL: %v", launcher.opened)
	}
}

// failingLauncher simulates a missing browser.
type failingLauncher struct{}

func (failingLauncher) Open(string) error {
	return fmt.Errorf("exec: \"xdg-open\": executable file not found in $PATH")
}

func TestBrokerLauncherFailureIsFatal(t *testing.T) {
	broker := &CaptchaBroker{
		launcher: failingLauncher{},
		logger:   &testLogger{},
		addr:     "127.0.0.1:38922",
	}

	_, err := broker.collect(GeetestInfo{GT: "g", Challenge: "c"})
	if err == nil {
		t.Fatal("expected an error from a failing launcher")
	}
	if !IsFatalError(err) {
		t.Errorf("launcher failure must be fatal, got %v", err)
	}
}
