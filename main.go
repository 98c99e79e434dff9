package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	bookID         string
	maxConcurrency int
	engineLog      *log.Logger
)

type moduleLogger struct {
	logger *log.Logger
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("      "+format, args...)
}

func main() {
	parseArgs()

	logFile, modLog := setupLogging()
	defer logFile.Close()

	_ = godotenv.Load()

	os.Exit(run(modLog))
}

func parseArgs() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: hbook <book-id> [-m concurrency]\nExample:\n  hbook 100194379 -m 4")
	}

	bookID = os.Args[1]
	if _, err := strconv.ParseUint(bookID, 10, 64); err != nil {
		log.Fatalf("book-id must be a number: %s", bookID)
	}

	maxConcurrency = 1
	for i := 2; i < len(os.Args); i++ {
		arg := os.Args[i]
		switch {
		case arg == "-m" || arg == "--multithreading":
			if i+1 >= len(os.Args) {
				log.Fatalf("%s requires a value", arg)
			}
			i++
			n, err := strconv.Atoi(os.Args[i])
			if err != nil {
				log.Fatalf("concurrency must be an integer: %s", os.Args[i])
			}
			maxConcurrency = n
		case strings.HasPrefix(arg, "-m="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "-m="))
			if err != nil {
				log.Fatalf("concurrency must be an integer: %s", arg)
			}
			maxConcurrency = n
		default:
			log.Fatalf("unknown argument: %s", arg)
		}
	}

	if ceiling := concurrencyCeiling(); maxConcurrency < 1 || maxConcurrency > ceiling {
		log.Fatalf("concurrency must be in [1, %d], got %d", ceiling, maxConcurrency)
	}
}

// concurrencyCeiling clamps the pool size to the hardware, with a floor of 4
// so small machines can still request modest parallelism.
func concurrencyCeiling() int {
	if n := runtime.NumCPU(); n > 4 {
		return n
	}
	return 4
}

func setupLogging() (logFile *os.File, modLog Logger) {
	logFile, err := os.OpenFile("hbook.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	engineLog = log.New(io.MultiWriter(os.Stdout, logFile), "", log.LstdFlags)

	return logFile, &moduleLogger{logger: engineLog}
}

func run(modLog Logger) int {
	engineLog.Printf("Maximum concurrency: %d", maxConcurrency)
	if maxConcurrency > 4 {
		modLog.Log("This maximum concurrency can be dangerous, please be careful")
	}

	httpClient, err := NewClient(nil)
	if err != nil {
		engineLog.Printf("FATAL: failed to create HTTP client: %v", err)
		return 1
	}
	hb := NewHBClient(httpClient, modLog)

	token, err := authenticate(hb, modLog)
	if err != nil {
		engineLog.Printf("FATAL: %v", err)
		return 1
	}

	bookInfo, err := hb.GetBookInfo(*token, bookID)
	if err != nil {
		engineLog.Printf("FATAL: failed to fetch book info: %v", err)
		return 1
	}
	engineLog.Printf("Book name: %s", bookInfo.Name)
	engineLog.Printf("Author: %s", bookInfo.Author)
	engineLog.Printf("Cover url: %s", bookInfo.CoverURL)
	downloadCover(hb, bookInfo.CoverURL, modLog)

	engineLog.Printf("Start getting chapter information")
	volumes, err := hb.GetVolumes(*token, bookID)
	if err != nil {
		engineLog.Printf("FATAL: failed to fetch chapter list: %v", err)
		return 1
	}

	tasks := manifestTasks(volumes)
	if len(tasks) == 0 {
		engineLog.Printf("FATAL: no accessible chapters in this book")
		return 1
	}

	engineLog.Printf("Start downloading novel content (%d chapters)", len(tasks))
	if err := fetchContent(*token, volumes, tasks, modLog); err != nil {
		engineLog.Printf("FATAL: %v", err)
		return 1
	}

	fileName, err := WriteBookTxt(bookInfo, volumes)
	if err != nil {
		engineLog.Printf("FATAL: failed to write output: %v", err)
		return 1
	}
	engineLog.Printf("Novel '%s' download completed: %s", bookInfo.Name, fileName)
	return 0
}

// authenticate reuses a stored token when the provider still accepts it and
// falls back to an interactive login otherwise. The fallback happens at most
// once, here at run start.
func authenticate(hb *HBClient, modLog Logger) (*Token, error) {
	store := NewTokenStore(modLog)
	if token := store.Load(hb); token != nil {
		return token, nil
	}

	loginName, loginPassword, err := credentials()
	if err != nil {
		return nil, err
	}

	var validation *ValidationResult
	required, err := hb.UseGeetest()
	if err != nil {
		return nil, fmt.Errorf("failed to check captcha requirement: %w", err)
	}
	if required {
		engineLog.Printf("Captcha required")
		broker := NewCaptchaBroker(hb, modLog)
		validation, err = broker.Solve(loginName)
		if err != nil {
			return nil, err
		}
	}

	info, err := hb.Login(loginName, loginPassword, validation)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	engineLog.Printf("Login successful, nick name: %s", info.UserInfo.NickName)

	if err := store.Save(info.Token); err != nil {
		return nil, fmt.Errorf("failed to persist login token: %w", err)
	}
	return &info.Token, nil
}

func credentials() (string, string, error) {
	loginName := GetAccount()
	loginPassword := GetPassword()
	if loginName != "" && loginPassword != "" {
		return loginName, loginPassword, nil
	}

	reader := bufio.NewReader(os.Stdin)
	if loginName == "" {
		fmt.Print("Login name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read login name: %w", err)
		}
		loginName = strings.TrimSpace(line)
	}
	if loginPassword == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		loginPassword = strings.TrimSpace(line)
	}

	if loginName == "" || loginPassword == "" {
		return "", "", fmt.Errorf("login name and password are required")
	}
	return loginName, loginPassword, nil
}

// downloadCover saves the cover image next to the output. Failures are
// warnings only.
func downloadCover(hb *HBClient, coverURL string, modLog Logger) {
	if coverURL == "" {
		return
	}

	data, err := hb.GetImage(coverURL)
	if err != nil {
		modLog.Log("%v: %s", err, coverURL)
		return
	}

	ext, ok := imageExtension(data)
	if !ok {
		modLog.Log("Image is not a supported format: %s", coverURL)
		return
	}

	name := "cover" + ext
	if err := os.WriteFile(name, data, 0o644); err != nil {
		modLog.Log("Failed to save cover: %v", err)
		return
	}
	engineLog.Printf("Cover downloaded successfully: %s", name)
}

// fetchContent drives the worker pool over the manifest and waits for every
// chapter to land, aborting on the first fatal result.
func fetchContent(token Token, volumes []Volume, tasks []FetchTask, modLog Logger) error {
	scheduler, err := NewScheduler(maxConcurrency, func(l Logger) (chapterFetcher, error) {
		return newContentFetcher(token, l)
	}, volumes, modLog)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	scheduler.Start()

	go func() {
		for _, task := range tasks {
			if !scheduler.Submit(task) {
				return
			}
		}
	}()

	completed := 0
	for completed < len(tasks) {
		select {
		case err := <-scheduler.Fatal():
			scheduler.Close()
			return err
		case result := <-scheduler.Results():
			completed++
			engineLog.Printf("[%d/%d] %s", completed, len(tasks), result.Title)
		}
	}

	scheduler.Close()
	return nil
}
