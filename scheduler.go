package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Logger interface {
	Log(format string, args ...any)
}

// chapterFetcher produces the final text lines of one chapter. The production
// fetcher runs the full command -> body -> decrypt -> image pipeline; tests
// substitute one that simulates work.
type chapterFetcher interface {
	FetchChapter(chapterID uint64) ([]string, error)
}

// contentFetcher is the per-worker unit-of-work pipeline. Each worker owns one
// HTTP client; only the token is shared, and it is read-only by the time the
// pool starts.
type contentFetcher struct {
	client *HBClient
	token  Token
	images *imageSaver
}

func newContentFetcher(token Token, logger Logger) (chapterFetcher, error) {
	client, err := NewClient(nil)
	if err != nil {
		return nil, err
	}
	hb := NewHBClient(client, logger)
	return &contentFetcher{
		client: hb,
		token:  token,
		images: &imageSaver{client: hb, logger: logger},
	}, nil
}

func (f *contentFetcher) FetchChapter(chapterID uint64) ([]string, error) {
	command, err := f.client.GetChapterCommand(f.token, chapterID)
	if err != nil {
		return nil, err
	}

	content, err := f.client.GetChapterText(f.token, chapterID, command)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "<img src") {
			replaced, ok := f.images.resolveLine(line)
			if !ok {
				continue
			}
			line = replaced
		}

		lines = append(lines, line)
	}
	return lines, nil
}

// FetchTask addresses one chapter by its position in the manifest. Results
// land at that position regardless of completion order.
type FetchTask struct {
	VolumeIndex  int
	ChapterIndex int
	ChapterID    uint64
	Title        string
}

type FetchResult struct {
	Title string
}

type Worker struct {
	id      string
	fetcher chapterFetcher
	logger  Logger
}

// Scheduler fans chapter fetches out across a bounded worker pool. The number
// of in-flight units never exceeds the worker count.
type Scheduler struct {
	workers     []*Worker
	workChan    chan FetchTask
	resultsChan chan FetchResult
	fatalChan   chan error
	wg          sync.WaitGroup
	volumes     []Volume
	logger      Logger
	ctx         context.Context
	cancel      context.CancelFunc
	fatalOnce   sync.Once
	stopped     atomic.Bool
}

// NewScheduler builds a pool of workerCount workers, each with its own
// fetcher. The volumes slice is the placement target for fetched texts.
func NewScheduler(workerCount int, newFetcher func(Logger) (chapterFetcher, error), volumes []Volume, logger Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		workers:     make([]*Worker, workerCount),
		workChan:    make(chan FetchTask, workerCount*2),
		resultsChan: make(chan FetchResult, workerCount*2),
		fatalChan:   make(chan error, 1),
		volumes:     volumes,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < workerCount; i++ {
		worker, err := s.createWorker(newFetcher)
		if err != nil {
			return nil, err
		}
		s.workers[i] = worker
	}

	return s, nil
}

func generateWorkerID() string {
	return uuid.New().String()[:8]
}

func (s *Scheduler) createWorker(newFetcher func(Logger) (chapterFetcher, error)) (*Worker, error) {
	id := generateWorkerID()
	workerLogger := &workerLogger{id: id, base: s.logger}

	fetcher, err := newFetcher(workerLogger)
	if err != nil {
		return nil, err
	}

	return &Worker{
		id:      id,
		fetcher: fetcher,
		logger:  workerLogger,
	}, nil
}

// workerLogger wraps a logger with worker ID prefix.
type workerLogger struct {
	id   string
	base Logger
}

func (w *workerLogger) Log(format string, args ...any) {
	w.base.Log("[%s] "+format, append([]any{w.id}, args...)...)
}

func (s *Scheduler) Start() {
	for _, worker := range s.workers {
		s.wg.Add(1)
		go s.runWorker(worker)
	}
}

func (s *Scheduler) handleFatalError(err error) {
	s.fatalOnce.Do(func() {
		s.stopped.Store(true)
		s.logger.Log("FATAL ERROR: %v - stopping all workers", err)

		// The channel holds one slot and this block runs once, so the
		// signal is never dropped and the send never blocks.
		s.fatalChan <- err
		s.cancel()
	})
}

func (s *Scheduler) runWorker(worker *Worker) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.workChan:
			if s.stopped.Load() {
				return
			}

			lines, err := worker.fetcher.FetchChapter(task.ChapterID)
			if err != nil {
				// No per-chapter retry exists: any fetch failure aborts the
				// run and partial results are discarded.
				s.handleFatalError(err)
				return
			}

			s.volumes[task.VolumeIndex].Chapters[task.ChapterIndex].Texts = lines

			select {
			case s.resultsChan <- FetchResult{Title: task.Title}:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// Submit adds a chapter to the work queue. It reports false when the pool has
// been cancelled, so a fatal abort never strands the submitting goroutine.
// The work channel is never closed; idle workers leave via the context.
func (s *Scheduler) Submit(task FetchTask) bool {
	select {
	case s.workChan <- task:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Results returns the results channel for reading per-chapter outcomes.
// Arrival order is arbitrary; placement order is not.
func (s *Scheduler) Results() <-chan FetchResult {
	return s.resultsChan
}

// Fatal delivers the error that aborted the run, at most one per scheduler.
// Consumers must select on it alongside Results: a fatal error can arrive
// while the results buffer still holds completed chapters.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatalChan
}

// Close stops the pool and waits for workers to finish. Safe to call whether
// the run completed or aborted.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
	close(s.resultsChan)
}

// WorkerCount returns the number of workers.
func (s *Scheduler) WorkerCount() int {
	return len(s.workers)
}

// manifestTasks flattens the filtered volumes into fetch tasks in
// table-of-contents order.
func manifestTasks(volumes []Volume) []FetchTask {
	var tasks []FetchTask
	for vi := range volumes {
		for ci := range volumes[vi].Chapters {
			chapter := &volumes[vi].Chapters[ci]
			tasks = append(tasks, FetchTask{
				VolumeIndex:  vi,
				ChapterIndex: ci,
				ChapterID:    chapter.ID,
				Title:        chapter.Title,
			})
		}
	}
	return tasks
}
