package compress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseProgressLine(t *testing.T) {
	minute := time.Minute

	tests := []struct {
		name     string
		line     string
		duration time.Duration
		want     float64
		ok       bool
	}{
		{"halfway", "out_time_ms=30000000", minute, 50, true},
		{"start", "out_time_ms=0", minute, 0, true},
		{"capped at 99", "out_time_ms=59900000", minute, 99, true},
		{"past the end stays capped", "out_time_ms=75000000", minute, 99, true},
		{"other key", "frame=120", minute, 0, false},
		{"progress marker", "progress=continue", minute, 0, false},
		{"negative value", "out_time_ms=-9223372036854775808", minute, 0, false},
		{"garbage value", "out_time_ms=N/A", minute, 0, false},
		{"no separator", "out_time_ms", minute, 0, false},
		{"zero duration", "out_time_ms=1000000", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseProgressLine(tt.line, tt.duration)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.InDelta(t, tt.want, got, 0.01)
			}
		})
	}
}

func TestBuildArgsQuality(t *testing.T) {
	args := buildArgs(Request{
		InputPath:  "/tmp/in.mp4",
		OutputPath: "/tmp/out.mp4",
		CRF:        28,
		Resolution: ModeSource,
	}, softwareCodec, "fast")

	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-vcodec libx264")
	require.Contains(t, joined, "-crf 28")
	require.Contains(t, joined, "-preset fast")
	require.Contains(t, joined, "-progress pipe:1")
	require.Contains(t, joined, "-nostats")
	require.NotContains(t, joined, "-vf")
	require.NotContains(t, joined, "-b:v")
	require.Equal(t, "/tmp/out.mp4", args[len(args)-1])
}

func TestBuildArgsBitrate(t *testing.T) {
	args := buildArgs(Request{
		InputPath:   "/tmp/in.mp4",
		OutputPath:  "/tmp/out.mp4",
		BitrateKbps: 2500,
		Resolution:  "720p",
	}, softwareCodec, "fast")

	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-b:v 2500k")
	require.Contains(t, joined, "-vf scale=1280:720")
	require.NotContains(t, joined, "-crf")
}

func TestBuildArgsNvencQuality(t *testing.T) {
	args := buildArgs(Request{
		InputPath:  "/tmp/in.mp4",
		OutputPath: "/tmp/out.mp4",
		CRF:        23,
		Resolution: ModeSource,
	}, nvencCodec, "fast")

	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-vcodec h264_nvenc")
	require.Contains(t, joined, "-cq 23")
	require.NotContains(t, joined, "-crf")
}

func TestBuildArgsCustomResolution(t *testing.T) {
	args := buildArgs(Request{
		InputPath:  "/tmp/in.mp4",
		OutputPath: "/tmp/out.mp4",
		CRF:        28,
		Resolution: ModeCustom,
		Width:      1600,
		Height:     900,
	}, softwareCodec, "fast")

	require.Contains(t, strings.Join(args, " "), "-vf scale=1600:900")
}

func TestScaleFor(t *testing.T) {
	tests := []struct {
		mode   string
		width  int
		height int
		want   string
		ok     bool
	}{
		{"source", 0, 0, "", false},
		{"custom", 640, 480, "640:480", true},
		{"1080p", 0, 0, "1920:1080", true},
		{"720p", 0, 0, "1280:720", true},
		{"360p", 0, 0, "640:360", true},
		{"4320p", 0, 0, "7680:4320", true},
		{"900p", 0, 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, ok := ScaleFor(tt.mode, tt.width, tt.height)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidMode(t *testing.T) {
	for _, mode := range []string{"source", "custom", "360p", "480p", "720p", "1080p", "1440p", "2160p", "4320p"} {
		require.True(t, ValidMode(mode), mode)
	}
	for _, mode := range []string{"", "Source", "900p", "8k", "1080", "original"} {
		require.False(t, ValidMode(mode), mode)
	}
}

func TestTailBufferKeepsTail(t *testing.T) {
	var tb tailBuffer

	n, err := tb.Write([]byte("header noise\n"))
	require.NoError(t, err)
	require.Equal(t, 13, n)

	filler := strings.Repeat("x", stderrTailCap)
	_, err = tb.Write([]byte(filler))
	require.NoError(t, err)
	_, err = tb.Write([]byte("Error: invalid data found when processing input"))
	require.NoError(t, err)

	tail := tb.Tail()
	require.LessOrEqual(t, len(tail), stderrTailCap)
	require.True(t, strings.HasSuffix(tail, "invalid data found when processing input"))
	require.NotContains(t, tail, "header noise")
}
