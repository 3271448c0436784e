package job

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yat0i811/CompShare/internal/core/compress"
	"github.com/yat0i811/CompShare/internal/core/event"
	"github.com/yat0i811/CompShare/internal/core/fileserver"
	"github.com/yat0i811/CompShare/internal/core/notify"
	"github.com/yat0i811/CompShare/internal/core/storage"
)

type fakeEncoder struct {
	run func(ctx context.Context, req compress.Request, s *compress.Stream)
}

func (f *fakeEncoder) Probe(ctx context.Context, path string) (time.Duration, error) {
	return 10 * time.Second, nil
}

func (f *fakeEncoder) Run(ctx context.Context, req compress.Request) *compress.Stream {
	s := compress.NewStream()
	go f.run(ctx, req, s)
	return s
}

type fakeObjects struct {
	mu      sync.Mutex
	uploads map[string]int64
	deleted []string
}

var _ storage.ObjectStore = (*fakeObjects)(nil)

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: make(map[string]int64)}
}

func (f *fakeObjects) PresignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://objects.test/put/" + key, nil
}

func (f *fakeObjects) PresignGet(ctx context.Context, key, filename string, expires time.Duration) (string, error) {
	return "https://objects.test/get/" + key, nil
}

func (f *fakeObjects) Download(ctx context.Context, key, destPath string) (int64, error) {
	data := []byte("source-bytes")
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (f *fakeObjects) Upload(ctx context.Context, key, srcPath, contentType string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads[key] = info.Size()
	f.mu.Unlock()
	return nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeObjects) Exists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (f *fakeObjects) uploadedSize(key string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.uploads[key]
	return size, ok
}

func (f *fakeObjects) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeObjects) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type recordConn struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *recordConn) WriteEvent(ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *recordConn) Close() error { return nil }

func (c *recordConn) snapshot() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Event(nil), c.events...)
}

type testRig struct {
	runner   *Runner
	registry *notify.Registry
	bus      event.Bus
	objects  *fakeObjects
}

func newTestRig(t *testing.T, enc compress.Encoder, maxConcurrent int) *testRig {
	t.Helper()
	registry := notify.NewRegistry()
	bus := event.NewBus()
	notify.NewDispatcher(bus, registry).SetupSubscribers()
	objects := newFakeObjects()
	runner := NewRunner(registry, objects, enc, bus, fileserver.NewSigner("test-secret"), WorkerConfig{
		WorkDir:       t.TempDir(),
		MaxConcurrent: maxConcurrent,
		PublicURL:     "http://localhost:8080",
		LinkExpiry:    time.Hour,
		GraceWait:     20 * time.Millisecond,
	})
	return &testRig{runner: runner, registry: registry, bus: bus, objects: objects}
}

func testSpec(correlationID string) Spec {
	return Spec{
		ID:            uuid.NewString(),
		UserID:        uuid.NewString(),
		CorrelationID: correlationID,
		SourceKey:     "uploads/abc123_clip.mp4",
		Filename:      "clip.mp4",
		Params:        Params{CRF: 28, Resolution: "720p"},
	}
}

func percents(events []notify.Event) []float64 {
	var out []float64
	for _, ev := range events {
		if ev.Type == notify.KindProgress {
			out = append(out, *ev.Percent)
		}
	}
	return out
}

func terminals(events []notify.Event) []notify.Event {
	var out []notify.Event
	for _, ev := range events {
		if ev.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunnerSuccessDeliversOrderedEvents(t *testing.T) {
	enc := &fakeEncoder{run: func(ctx context.Context, req compress.Request, s *compress.Stream) {
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 30})
		s.Emit(compress.Event{Kind: compress.EventWarning, Detail: "hardware encoder unavailable, using software encoder"})
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 60})
		if err := os.WriteFile(req.OutputPath, []byte("compressed-bytes"), 0o644); err != nil {
			s.CloseWith(err)
			return
		}
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 100})
		s.CloseWith(nil)
	}}
	rig := newTestRig(t, enc, 2)

	conn := &recordConn{}
	rig.registry.Register("cid-1", notify.NewChannel(conn))

	spec := testSpec("cid-1")
	rig.runner.Start(spec)

	require.Eventually(t, func() bool {
		events := conn.snapshot()
		return len(events) > 0 && events[len(events)-1].Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	events := conn.snapshot()
	require.Equal(t, []float64{0, 30, 60, 100}, percents(events))
	require.Len(t, terminals(events), 1)

	warnIdx, doneIdx := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case notify.KindWarning:
			warnIdx = i
			require.Contains(t, ev.Detail, "software encoder")
		case notify.KindDone:
			doneIdx = i
		}
	}
	require.Greater(t, warnIdx, 0, "warning arrives after the first progress")
	require.Equal(t, len(events)-1, doneIdx, "done is the final event")

	done := events[doneIdx]
	hexID := strings.ReplaceAll(spec.ID, "-", "")
	require.Equal(t, "clip_compressed.mp4", done.Filename)
	require.Equal(t, int64(len("compressed-bytes")), done.Size)
	require.Equal(t, "compressed/"+hexID+"/clip_compressed.mp4", done.StorageKey)
	require.NotEmpty(t, done.DownloadID)
	require.Contains(t, done.URL, "/dl/"+done.DownloadID+"/")
	require.Contains(t, done.URL, "clip_compressed.mp4")

	size, ok := rig.objects.uploadedSize(done.StorageKey)
	require.True(t, ok, "output uploaded to object storage")
	require.Equal(t, done.Size, size)
	require.Equal(t, []string{spec.SourceKey}, rig.objects.deletedKeys())
}

func TestRunnerEncoderFailure(t *testing.T) {
	enc := &fakeEncoder{run: func(ctx context.Context, req compress.Request, s *compress.Stream) {
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 10})
		s.CloseWith(errors.New("ffmpeg exited: moov atom not found"))
	}}
	rig := newTestRig(t, enc, 2)

	conn := &recordConn{}
	rig.registry.Register("cid-2", notify.NewChannel(conn))

	rig.runner.Start(testSpec("cid-2"))

	require.Eventually(t, func() bool {
		events := conn.snapshot()
		return len(events) > 0 && events[len(events)-1].Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	events := conn.snapshot()
	require.Equal(t, []float64{0, 10}, percents(events))

	terms := terminals(events)
	require.Len(t, terms, 1)
	require.Equal(t, notify.KindError, terms[0].Type)
	require.Contains(t, terms[0].Detail, "moov atom")

	require.Empty(t, rig.objects.deletedKeys(), "failed jobs keep their source upload")
	require.Zero(t, rig.objects.uploadCount())
}

func TestRunnerHeadlessJobCompletes(t *testing.T) {
	enc := &fakeEncoder{run: func(ctx context.Context, req compress.Request, s *compress.Stream) {
		if err := os.WriteFile(req.OutputPath, []byte("out"), 0o644); err != nil {
			s.CloseWith(err)
			return
		}
		s.CloseWith(nil)
	}}
	rig := newTestRig(t, enc, 2)

	completed := make(chan event.JobEvent, 1)
	rig.bus.Subscribe(event.EventJobCompleted, func(ctx context.Context, e event.Event) error {
		completed <- e.Payload.(event.JobEvent)
		return nil
	})

	spec := testSpec("cid-nobody-listens")
	rig.runner.Start(spec)

	select {
	case payload := <-completed:
		require.NotNil(t, payload.Result)
		require.Equal(t, spec.ID, payload.JobID)
		require.Equal(t, "clip_compressed.mp4", payload.Result.Filename)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not complete without a notification channel")
	}
}

func TestRunnerClampsRestartedProgress(t *testing.T) {
	enc := &fakeEncoder{run: func(ctx context.Context, req compress.Request, s *compress.Stream) {
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 10})
		// A software retry restarts ffmpeg from the beginning.
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 5})
		s.Emit(compress.Event{Kind: compress.EventProgress, Percent: 20})
		if err := os.WriteFile(req.OutputPath, []byte("out"), 0o644); err != nil {
			s.CloseWith(err)
			return
		}
		s.CloseWith(nil)
	}}
	rig := newTestRig(t, enc, 2)

	conn := &recordConn{}
	rig.registry.Register("cid-3", notify.NewChannel(conn))

	rig.runner.Start(testSpec("cid-3"))

	require.Eventually(t, func() bool {
		events := conn.snapshot()
		return len(events) > 0 && events[len(events)-1].Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []float64{0, 10, 20}, percents(conn.snapshot()))
}

func TestRunnerLimitsConcurrency(t *testing.T) {
	gate := make(chan struct{})
	enc := &fakeEncoder{run: func(ctx context.Context, req compress.Request, s *compress.Stream) {
		<-gate
		if err := os.WriteFile(req.OutputPath, []byte("out"), 0o644); err != nil {
			s.CloseWith(err)
			return
		}
		s.CloseWith(nil)
	}}
	rig := newTestRig(t, enc, 1)

	var started, completed atomic.Int32
	rig.bus.Subscribe(event.EventJobStarted, func(ctx context.Context, e event.Event) error {
		started.Add(1)
		return nil
	})
	rig.bus.Subscribe(event.EventJobCompleted, func(ctx context.Context, e event.Event) error {
		completed.Add(1)
		return nil
	})

	rig.runner.Start(testSpec("cid-a"))
	rig.runner.Start(testSpec("cid-b"))

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int32(1), started.Load(), "second job waits for a slot")

	close(gate)
	require.Eventually(t, func() bool { return completed.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerShutdownFailsRunningJob(t *testing.T) {
	enc := &fakeEncoder{run: func(ctx context.Context, req compress.Request, s *compress.Stream) {
		<-ctx.Done()
		s.CloseWith(ctx.Err())
	}}
	rig := newTestRig(t, enc, 2)

	conn := &recordConn{}
	rig.registry.Register("cid-4", notify.NewChannel(conn))

	startedCh := make(chan struct{}, 1)
	rig.bus.Subscribe(event.EventJobStarted, func(ctx context.Context, e event.Event) error {
		startedCh <- struct{}{}
		return nil
	})

	rig.runner.Start(testSpec("cid-4"))
	<-startedCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rig.runner.Shutdown(ctx))
	require.Zero(t, rig.runner.Active())

	require.Eventually(t, func() bool {
		return len(terminals(conn.snapshot())) == 1
	}, time.Second, 10*time.Millisecond)
	terms := terminals(conn.snapshot())
	require.Equal(t, notify.KindError, terms[0].Type)
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"clip.mp4", "clip_compressed.mp4"},
		{"holiday video.mov", "holiday video_compressed.mov"},
		{"noext", "noext_compressed.mp4"},
		{"archive.tar.gz", "archive.tar_compressed.gz"},
		{"", "video_compressed.mp4"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, outputName(tc.in), "input %q", tc.in)
	}
}
