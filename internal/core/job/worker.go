package job

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/compress"
	"github.com/yat0i811/CompShare/internal/core/event"
	"github.com/yat0i811/CompShare/internal/core/fileserver"
	"github.com/yat0i811/CompShare/internal/core/notify"
	"github.com/yat0i811/CompShare/internal/core/storage"
)

// terminalPublishTimeout bounds the detached context used to publish a
// terminal event after the job context is gone.
const terminalPublishTimeout = 10 * time.Second

type WorkerConfig struct {
	WorkDir       string
	MaxConcurrent int
	PublicURL     string
	LinkExpiry    time.Duration
	// GraceWait is how long a fresh job waits for its notification channel
	// to appear before encoding headless.
	GraceWait time.Duration
}

// Runner executes compression jobs on background goroutines: fetch the
// source from object storage, run the encoder, store the result, and publish
// lifecycle events on the bus. It never touches the database directly; the
// manager's subscribers do that.
type Runner struct {
	registry *notify.Registry
	objects  storage.ObjectStore
	encoder  compress.Encoder
	bus      event.Bus
	signer   *fileserver.Signer
	cfg      WorkerConfig

	slots chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(registry *notify.Registry, objects storage.ObjectStore, encoder compress.Encoder, bus event.Bus, signer *fileserver.Signer, cfg WorkerConfig) *Runner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.GraceWait <= 0 {
		cfg.GraceWait = time.Second
	}
	return &Runner{
		registry: registry,
		objects:  objects,
		encoder:  encoder,
		bus:      bus,
		signer:   signer,
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches the job in the background and returns immediately. The job
// context is detached from the submission request so a closed connection or
// dropped notification channel never cancels encoding.
func (r *Runner) Start(spec Spec) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancels[spec.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, spec.ID)
			r.mu.Unlock()
			cancel()
		}()
		r.run(ctx, spec)
	}()
}

// Active reports how many jobs currently hold a goroutine.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// Shutdown cancels every running job and waits for their goroutines, bounded
// by ctx. Cancelled jobs publish their failed event before returning.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, spec Spec) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		r.fail(spec, "cancelled before encoding started")
		return
	}
	defer func() { <-r.slots }()

	r.awaitChannel(ctx, spec.CorrelationID)

	r.publish(ctx, event.EventJobStarted, event.JobEvent{
		JobID:         spec.ID,
		CorrelationID: spec.CorrelationID,
		UserID:        spec.UserID,
		SourceKey:     spec.SourceKey,
	})
	r.publishProgress(ctx, spec, 0)

	result, err := r.encode(ctx, spec)
	if err != nil {
		r.fail(spec, err.Error())
		return
	}
	r.complete(spec, result)
}

func (r *Runner) encode(ctx context.Context, spec Spec) (*event.JobResult, error) {
	hexID := strings.ReplaceAll(spec.ID, "-", "")
	scratch := filepath.Join(r.cfg.WorkDir, hexID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	ext := filepath.Ext(spec.Filename)
	inPath := filepath.Join(scratch, "source"+ext)
	if _, err := r.objects.Download(ctx, spec.SourceKey, inPath); err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	outName := outputName(spec.Filename)
	outPath := filepath.Join(scratch, outName)

	stream := r.encoder.Run(ctx, compress.Request{
		InputPath:   inPath,
		OutputPath:  outPath,
		CRF:         spec.Params.CRF,
		BitrateKbps: spec.Params.BitrateKbps,
		Resolution:  spec.Params.Resolution,
		Width:       spec.Params.Width,
		Height:      spec.Params.Height,
		HWAccel:     spec.Params.HWAccel,
	})

	// Submission already announced 0; forward only increases so a hardware
	// retry restarting the encode cannot walk the percentage backwards.
	last := 0.0
	for ev := range stream.Events() {
		switch ev.Kind {
		case compress.EventProgress:
			if ev.Percent > last {
				last = ev.Percent
				r.publishProgress(ctx, spec, ev.Percent)
			}
		case compress.EventWarning:
			r.publish(ctx, event.EventJobWarning, event.JobEvent{
				JobID:         spec.ID,
				CorrelationID: spec.CorrelationID,
				UserID:        spec.UserID,
				Detail:        ev.Detail,
			})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	outKey := "compressed/" + hexID + "/" + outName
	if err := r.objects.Upload(ctx, outKey, outPath, contentTypeFor(ext)); err != nil {
		return nil, fmt.Errorf("store output: %w", err)
	}

	token := r.signer.Sign(spec.ID, outKey, spec.UserID, time.Now().Add(r.cfg.LinkExpiry))
	downloadURL := fileserver.DownloadURL(r.cfg.PublicURL, token, outName)

	// Best effort; the janitor sweeps grants whose objects outlive their TTL.
	if err := r.objects.Delete(ctx, spec.SourceKey); err != nil {
		log.Warn().Err(err).Str("key", spec.SourceKey).Msg("source object cleanup failed")
	}

	return &event.JobResult{
		DownloadID: token,
		URL:        downloadURL,
		Filename:   outName,
		Size:       info.Size(),
		StorageKey: outKey,
	}, nil
}

// awaitChannel gives a client that submitted just before opening its socket
// a short window to register, so the earliest events are not dropped.
// Headless jobs proceed after the wait.
func (r *Runner) awaitChannel(ctx context.Context, correlationID string) {
	if correlationID == "" || r.registry.Lookup(correlationID) != nil {
		return
	}
	deadline := time.NewTimer(r.cfg.GraceWait)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if r.registry.Lookup(correlationID) != nil {
				return
			}
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) publish(ctx context.Context, typ event.EventType, payload event.JobEvent) {
	_ = r.bus.Publish(ctx, event.Event{Type: typ, Payload: payload})
}

func (r *Runner) publishProgress(ctx context.Context, spec Spec, pct float64) {
	r.publish(ctx, event.EventJobProgress, event.JobEvent{
		JobID:         spec.ID,
		CorrelationID: spec.CorrelationID,
		UserID:        spec.UserID,
		Progress:      pct,
	})
}

// fail publishes the failed event on a fresh context: the job context may
// already be cancelled, and the persistence subscriber still has to run.
func (r *Runner) fail(spec Spec, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalPublishTimeout)
	defer cancel()
	r.publish(ctx, event.EventJobFailed, event.JobEvent{
		JobID:         spec.ID,
		CorrelationID: spec.CorrelationID,
		UserID:        spec.UserID,
		SourceKey:     spec.SourceKey,
		Detail:        detail,
	})
}

func (r *Runner) complete(spec Spec, result *event.JobResult) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalPublishTimeout)
	defer cancel()
	r.publish(ctx, event.EventJobCompleted, event.JobEvent{
		JobID:         spec.ID,
		CorrelationID: spec.CorrelationID,
		UserID:        spec.UserID,
		SourceKey:     spec.SourceKey,
		Result:        result,
	})
}

// outputName derives the artifact name shown to the user: the source name
// with "_compressed" before the extension.
func outputName(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	if base == "" || base == "." {
		base = "video"
	}
	if ext == "" {
		ext = ".mp4"
	}
	return base + "_compressed" + ext
}

func contentTypeFor(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
