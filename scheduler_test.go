package main

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// gaugeFetcher simulates chapter fetches and tracks how many run at once.
type gaugeFetcher struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	failOn      uint64
}

func (f *gaugeFetcher) FetchChapter(chapterID uint64) ([]string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	time.Sleep(10 * time.Millisecond)

	if f.failOn != 0 && chapterID == f.failOn {
		return nil, fmt.Errorf("simulated fetch failure for chapter %d", chapterID)
	}
	return []string{fmt.Sprintf("body of chapter %d", chapterID)}, nil
}

func testVolumes() []Volume {
	return []Volume{
		{ID: 1, Name: "volume one", Chapters: []Chapter{
			{ID: 11, Title: "c11"}, {ID: 12, Title: "c12"}, {ID: 13, Title: "c13"},
			{ID: 14, Title: "c14"}, {ID: 15, Title: "c15"},
		}},
		{ID: 2, Name: "volume two", Chapters: []Chapter{
			{ID: 21, Title: "c21"}, {ID: 22, Title: "c22"}, {ID: 23, Title: "c23"},
			{ID: 24, Title: "c24"}, {ID: 25, Title: "c25"},
		}},
	}
}

func newTestScheduler(t *testing.T, workerCount int, fetcher chapterFetcher, volumes []Volume) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(workerCount, func(Logger) (chapterFetcher, error) {
		return fetcher, nil
	}, volumes, &testLogger{})
	if err != nil {
		t.Fatalf("NewScheduler returned error: %v", err)
	}
	return scheduler
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	fetcher := &gaugeFetcher{}
	volumes := testVolumes()
	scheduler := newTestScheduler(t, 2, fetcher, volumes)
	if scheduler.WorkerCount() != 2 {
		t.Fatalf("expected 2 workers, got %d", scheduler.WorkerCount())
	}

	tasks := manifestTasks(volumes)
	if len(tasks) != 10 {
		t.Fatalf("expected 10 tasks, got %d", len(tasks))
	}

	scheduler.Start()
	go func() {
		for _, task := range tasks {
			scheduler.Submit(task)
		}
	}()

	completed := 0
	for completed < len(tasks) {
		select {
		case err := <-scheduler.Fatal():
			t.Fatalf("unexpected fatal error: %v", err)
		case <-scheduler.Results():
			completed++
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d chapters", completed, len(tasks))
		}
	}
	scheduler.Close()

	if max := fetcher.maxInFlight.Load(); max > 2 {
		t.Errorf("in-flight fetches exceeded the bound: got %d, want <= 2", max)
	}

	// Results land by manifest position regardless of completion order.
	for vi, volume := range volumes {
		for ci, chapter := range volume.Chapters {
			want := fmt.Sprintf("body of chapter %d", chapter.ID)
			if len(chapter.Texts) != 1 || chapter.Texts[0] != want {
				t.Errorf("volume %d chapter %d misplaced texts: %v", vi, ci, chapter.Texts)
			}
		}
	}
}

func TestSchedulerFatalAbort(t *testing.T) {
	fetcher := &gaugeFetcher{failOn: 23}
	volumes := testVolumes()
	scheduler := newTestScheduler(t, 2, fetcher, volumes)

	tasks := manifestTasks(volumes)
	scheduler.Start()
	go func() {
		for _, task := range tasks {
			if !scheduler.Submit(task) {
				return
			}
		}
	}()

	var fatalErr error
	completed := 0
	for completed < len(tasks) && fatalErr == nil {
		select {
		case fatalErr = <-scheduler.Fatal():
		case <-scheduler.Results():
			completed++
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d chapters with no fatal error", completed, len(tasks))
		}
	}
	scheduler.Close()

	if fatalErr == nil {
		t.Fatal("expected a fatal error, got none")
	}
	if completed == len(tasks) {
		t.Error("run completed despite a failing chapter")
	}
}

// A fatal error must reach the consumer even when the results buffer is full
// of completed chapters at the moment a worker fails.
func TestSchedulerFatalSignalSurvivesFullResultsBuffer(t *testing.T) {
	// One worker, results buffer of two: chapters 11 and 12 fill the buffer
	// before chapter 13 fails, so the failure happens against a full buffer.
	fetcher := &gaugeFetcher{failOn: 13}
	volumes := []Volume{
		{ID: 1, Name: "volume one", Chapters: []Chapter{
			{ID: 11, Title: "c11"}, {ID: 12, Title: "c12"}, {ID: 13, Title: "c13"},
			{ID: 14, Title: "c14"}, {ID: 15, Title: "c15"},
		}},
	}
	scheduler := newTestScheduler(t, 1, fetcher, volumes)

	tasks := manifestTasks(volumes)
	scheduler.Start()
	go func() {
		for _, task := range tasks {
			if !scheduler.Submit(task) {
				return
			}
		}
	}()

	// Let the worker reach the failing chapter before anything is consumed.
	time.Sleep(200 * time.Millisecond)

	var fatalErr error
	completed := 0
	for completed < len(tasks) && fatalErr == nil {
		select {
		case fatalErr = <-scheduler.Fatal():
		case <-scheduler.Results():
			completed++
		case <-time.After(2 * time.Second):
			t.Fatalf("fatal error was dropped: saw %d/%d chapters and no abort", completed, len(tasks))
		}
	}
	scheduler.Close()

	if fatalErr == nil {
		t.Fatal("expected a fatal error, got none")
	}
}

// Closing the pool after an abort must not blow up a submitter that is still
// mid-Submit; it has to unblock and stop.
func TestSchedulerCloseDuringSubmit(t *testing.T) {
	fetcher := &gaugeFetcher{failOn: 3}
	chapters := make([]Chapter, 50)
	for i := range chapters {
		chapters[i] = Chapter{ID: uint64(i + 1), Title: fmt.Sprintf("c%d", i+1)}
	}
	volumes := []Volume{{ID: 1, Name: "volume one", Chapters: chapters}}
	scheduler := newTestScheduler(t, 2, fetcher, volumes)

	tasks := manifestTasks(volumes)
	scheduler.Start()

	submitterDone := make(chan struct{})
	go func() {
		defer close(submitterDone)
		for _, task := range tasks {
			if !scheduler.Submit(task) {
				return
			}
		}
	}()

	var fatalErr error
	completed := 0
	for completed < len(tasks) && fatalErr == nil {
		select {
		case fatalErr = <-scheduler.Fatal():
		case <-scheduler.Results():
			completed++
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d/%d chapters with no fatal error", completed, len(tasks))
		}
	}
	scheduler.Close()

	if fatalErr == nil {
		t.Fatal("expected a fatal error, got none")
	}

	select {
	case <-submitterDone:
	case <-time.After(2 * time.Second):
		t.Fatal("submitter goroutine did not unblock after Close")
	}
}

func TestManifestTasksOrder(t *testing.T) {
	volumes := testVolumes()
	tasks := manifestTasks(volumes)

	wantIDs := []uint64{11, 12, 13, 14, 15, 21, 22, 23, 24, 25}
	if len(tasks) != len(wantIDs) {
		t.Fatalf("expected %d tasks, got %d", len(wantIDs), len(tasks))
	}
	for i, task := range tasks {
		if task.ChapterID != wantIDs[i] {
			t.Errorf("task %d out of manifest order: got %d, want %d", i, task.ChapterID, wantIDs[i])
		}
	}
	if tasks[5].VolumeIndex != 1 || tasks[5].ChapterIndex != 0 {
		t.Errorf("task addressing mismatch: %+v", tasks[5])
	}
}
