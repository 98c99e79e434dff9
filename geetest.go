package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "embed"

	"github.com/valyala/fasthttp"
)

//go:embed captcha.html
var captchaPage string

//go:embed geetest.js
var geetestScript string

const (
	captchaAddr = "localhost:3000"

	// Delay before the browser handoff so the listener is bound first.
	browserLaunchDelay = 100 * time.Millisecond
)

// BrowserLauncher opens a URL in the user's browser. The production launcher
// shells out to the platform's opener; tests substitute one that records the
// call instead of spawning anything.
type BrowserLauncher interface {
	Open(pageURL string) error
}

type systemLauncher struct{}

func (systemLauncher) Open(pageURL string) error {
	name, args, err := browserCommand()
	if err != nil {
		return err
	}
	return exec.Command(name, append(args, pageURL)...).Run()
}

// browserCommand selects the platform's browser opener. A Linux kernel built
// by Microsoft means WSL, where the host's opener must be used instead.
func browserCommand() (string, []string, error) {
	switch runtime.GOOS {
	case "darwin":
		return "open", nil, nil
	case "linux":
		release, err := os.ReadFile("/proc/sys/kernel/osrelease")
		if err != nil {
			return "", nil, fmt.Errorf("failed to read kernel release: %w", err)
		}
		if strings.Contains(strings.ToLower(string(release)), "microsoft") {
			return "powershell.exe", []string{"/c", "start"}, nil
		}
		return "xdg-open", nil, nil
	default:
		return "", nil, fmt.Errorf("no browser launcher for platform %s", runtime.GOOS)
	}
}

// CaptchaBroker runs the interactive verification round-trip: it fetches a
// challenge descriptor, serves the challenge page on a local callback server,
// hands control to the user's browser and blocks until the page reports the
// solved token back on the validate route.
type CaptchaBroker struct {
	client   *HBClient
	launcher BrowserLauncher
	logger   Logger
	addr     string
}

func NewCaptchaBroker(client *HBClient, logger Logger) *CaptchaBroker {
	return &CaptchaBroker{
		client:   client,
		launcher: systemLauncher{},
		logger:   logger,
		addr:     captchaAddr,
	}
}

func renderCaptchaPage(info GeetestInfo) string {
	newCaptcha := "false"
	if info.NewCaptcha != 0 {
		newCaptcha = "true"
	}
	return strings.NewReplacer(
		"@gt@", info.GT,
		"@challenge@", info.Challenge,
		"@new_captcha@", newCaptcha,
	).Replace(captchaPage)
}

// Solve blocks until the user completes the verification in their browser.
// There is deliberately no deadline on the wait; an abandoned browser session
// stalls the run, matching the upstream protocol tool.
func (b *CaptchaBroker) Solve(userID string) (*ValidationResult, error) {
	info, err := b.client.GetGeetestInfo(userID, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captcha challenge: %w", err)
	}
	return b.collect(info)
}

// collect serves the challenge page and blocks until the validate route
// fires and the browser command has exited.
func (b *CaptchaBroker) collect(info GeetestInfo) (*ValidationResult, error) {
	page := renderCaptchaPage(info)

	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("failed to bind callback server: %w", err))
	}

	var (
		validate string
		once     sync.Once
		solved   = make(chan struct{})
	)

	server := &fasthttp.Server{
		DisableKeepalive: true,
		Handler: func(ctx *fasthttp.RequestCtx) {
			path := string(ctx.Path())
			switch {
			case path == "/captcha":
				ctx.SetContentType("text/html; charset=utf-8")
				ctx.SetBodyString(page)
			case path == "/geetest.js":
				ctx.SetContentType("text/javascript; charset=utf-8")
				ctx.SetBodyString(geetestScript)
			case strings.HasPrefix(path, "/validate/"):
				token := strings.TrimPrefix(path, "/validate/")
				once.Do(func() {
					validate = token
					close(solved)
				})
				ctx.SetContentType("text/plain; charset=utf-8")
				ctx.SetBodyString("Verification is successful, you can close the browser now")
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}

	go func() {
		<-solved
		_ = server.Shutdown()
	}()

	launchErr := make(chan error, 1)
	go func() {
		time.Sleep(browserLaunchDelay)
		b.logger.Log("Opening browser for captcha verification...")
		err := b.launcher.Open("http://" + b.addr + "/captcha")
		if err != nil {
			// No browser means no validate callback will ever arrive;
			// release the server so the failure surfaces.
			once.Do(func() { close(solved) })
		}
		launchErr <- err
	}()

	if err := server.Serve(ln); err != nil {
		return nil, NewFatalError(fmt.Errorf("callback server failed: %w", err))
	}

	// The browser command has usually exited long before the user finishes;
	// wait for it regardless so launch failures are not lost.
	if err := <-launchErr; err != nil {
		return nil, NewFatalError(fmt.Errorf("failed to open browser: %w", err))
	}

	if validate == "" {
		return nil, fmt.Errorf("callback server stopped without a validation token")
	}
	return &ValidationResult{Challenge: info.Challenge, Validate: validate}, nil
}
