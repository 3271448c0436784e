package compress

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	softwareCodec = "libx264"
	nvencCodec    = "h264_nvenc"

	// Encoder stderr kept for failure details. Long runs would otherwise
	// grow the buffer without bound.
	stderrTailCap = 1024
)

type FFmpegConfig struct {
	Binary      string
	ProbeBinary string
	Preset      string
	RunTimeout  time.Duration
}

// FFmpeg invokes ffmpeg/ffprobe as external tools.
type FFmpeg struct {
	binary      string
	probeBinary string
	preset      string
	hwEncoder   string
	runTimeout  time.Duration
}

func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	f := &FFmpeg{
		binary:      cfg.Binary,
		probeBinary: cfg.ProbeBinary,
		preset:      cfg.Preset,
		runTimeout:  cfg.RunTimeout,
	}
	if f.binary == "" {
		f.binary = "ffmpeg"
	}
	if f.probeBinary == "" {
		f.probeBinary = "ffprobe"
	}
	if f.preset == "" {
		f.preset = "fast"
	}
	return f
}

// Init checks both binaries and, when hardware acceleration is enabled in
// config, probes for a usable hardware encoder.
func (f *FFmpeg) Init(ctx context.Context, hwAccel bool) error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("ffmpeg binary not found: %w", err)
	}
	if _, err := exec.LookPath(f.probeBinary); err != nil {
		return fmt.Errorf("ffprobe binary not found: %w", err)
	}

	if hwAccel {
		out, err := exec.CommandContext(ctx, f.binary, "-hide_banner", "-encoders").Output()
		if err == nil && strings.Contains(string(out), nvencCodec) {
			f.hwEncoder = nvencCodec
			log.Info().Str("encoder", nvencCodec).Msg("hardware encoder available")
		} else {
			log.Warn().Msg("hardware acceleration requested but no hardware encoder found")
		}
	}
	return nil
}

// Probe returns the container duration of the media at path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.probeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("no usable duration in %q", probe.Format.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Run starts an encode and returns its event stream. Startup failures
// surface through the stream error, giving callers a single drain path.
func (f *FFmpeg) Run(ctx context.Context, req Request) *Stream {
	s := NewStream()
	go func() {
		s.CloseWith(f.run(ctx, req, s))
	}()
	return s
}

func (f *FFmpeg) run(ctx context.Context, req Request, s *Stream) error {
	if f.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.runTimeout)
		defer cancel()
	}

	duration, err := f.Probe(ctx, req.InputPath)
	if err != nil {
		return fmt.Errorf("probe input: %w", err)
	}

	codec := softwareCodec
	if req.HWAccel {
		if f.hwEncoder != "" {
			codec = f.hwEncoder
		} else {
			s.Emit(Event{Kind: EventWarning, Detail: "hardware encoder unavailable, using software encoding"})
		}
	}

	err = f.encode(ctx, req, codec, duration, s)
	if err != nil && codec != softwareCodec && ctx.Err() == nil {
		// Hardware encoders fail on inputs the driver rejects; one
		// software pass handles those.
		log.Warn().Err(err).Str("codec", codec).Msg("hardware encode failed, retrying with software")
		s.Emit(Event{Kind: EventWarning, Detail: "hardware encoding failed, retrying with software encoding"})
		err = f.encode(ctx, req, softwareCodec, duration, s)
	}
	return err
}

func (f *FFmpeg) encode(ctx context.Context, req Request, codec string, duration time.Duration, s *Stream) error {
	args := buildArgs(req, codec, f.preset)
	log.Debug().Strs("args", args).Msg("starting ffmpeg")

	cmd := exec.CommandContext(ctx, f.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipe: %w", err)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", f.binary, err)
	}

	lastPercent := -1.0
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		pct, ok := parseProgressLine(scanner.Text(), duration)
		if !ok || pct <= lastPercent {
			continue
		}
		lastPercent = pct
		s.TryEmit(Event{Kind: EventProgress, Percent: pct})
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("encode aborted: %w", ctx.Err())
		}
		if detail := stderr.Tail(); detail != "" {
			return fmt.Errorf("%s: %s", f.binary, detail)
		}
		return fmt.Errorf("%s: %w", f.binary, err)
	}

	s.Emit(Event{Kind: EventProgress, Percent: 100})
	return nil
}

// parseProgressLine extracts a progress percentage from one line of
// `-progress pipe:1` output. out_time_ms is in microseconds despite the
// name. Estimates are capped at 99 while the tool runs; 100 is emitted once
// on successful exit.
func parseProgressLine(line string, duration time.Duration) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || key != "out_time_ms" {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || us < 0 || duration <= 0 {
		return 0, false
	}
	pct := float64(us) / 1e6 / duration.Seconds() * 100
	if pct < 0 {
		return 0, false
	}
	if pct > 99 {
		pct = 99
	}
	return pct, true
}

func buildArgs(req Request, codec, preset string) []string {
	args := []string{"-y", "-i", req.InputPath, "-vcodec", codec}
	switch {
	case req.BitrateKbps > 0:
		args = append(args, "-b:v", fmt.Sprintf("%dk", req.BitrateKbps))
	case codec == nvencCodec:
		// nvenc has no -crf; -cq is its constant-quality knob.
		args = append(args, "-cq", strconv.Itoa(req.CRF))
	default:
		args = append(args, "-crf", strconv.Itoa(req.CRF))
	}
	args = append(args, "-preset", preset)
	if scale, ok := ScaleFor(req.Resolution, req.Width, req.Height); ok {
		args = append(args, "-vf", "scale="+scale)
	}
	args = append(args, "-progress", "pipe:1", "-nostats", req.OutputPath)
	return args
}

// tailBuffer keeps the last stderrTailCap bytes written to it.
type tailBuffer struct {
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailCap {
		t.buf = t.buf[len(t.buf)-stderrTailCap:]
	}
	return len(p), nil
}

func (t *tailBuffer) Tail() string {
	return strings.TrimSpace(string(t.buf))
}
