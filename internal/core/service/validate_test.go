package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yat0i811/CompShare/internal/core/job"
)

func intp(v int) *int { return &v }

func TestValidateParams(t *testing.T) {
	cases := []struct {
		name    string
		req     SubmitRequest
		want    job.Params
		wantErr string
	}{
		{name: "defaults", req: SubmitRequest{}, want: job.Params{CRF: 28, Resolution: "source"}},
		{name: "named resolution", req: SubmitRequest{CRF: intp(23), Resolution: "720p"}, want: job.Params{CRF: 23, Resolution: "720p"}},
		{name: "bitrate mode", req: SubmitRequest{BitrateKbps: intp(2500)}, want: job.Params{BitrateKbps: 2500, Resolution: "source"}},
		{name: "crf zero is lossless not unset", req: SubmitRequest{CRF: intp(0)}, want: job.Params{CRF: 0, Resolution: "source"}},
		{name: "custom resolution", req: SubmitRequest{Resolution: "custom", Width: 1280, Height: 720}, want: job.Params{CRF: 28, Resolution: "custom", Width: 1280, Height: 720}},
		{name: "hwaccel carried", req: SubmitRequest{HWAccel: true}, want: job.Params{CRF: 28, Resolution: "source", HWAccel: true}},
		{name: "both quality knobs", req: SubmitRequest{CRF: intp(28), BitrateKbps: intp(1000)}, wantErr: "mutually exclusive"},
		{name: "crf too high", req: SubmitRequest{CRF: intp(52)}, wantErr: "between 0 and 51"},
		{name: "crf negative", req: SubmitRequest{CRF: intp(-1)}, wantErr: "between 0 and 51"},
		{name: "bitrate zero", req: SubmitRequest{BitrateKbps: intp(0)}, wantErr: "positive"},
		{name: "bitrate negative", req: SubmitRequest{BitrateKbps: intp(-100)}, wantErr: "positive"},
		{name: "unknown resolution", req: SubmitRequest{Resolution: "900p"}, wantErr: "resolution"},
		{name: "custom width zero", req: SubmitRequest{Resolution: "custom", Width: 0, Height: 720}, wantErr: "width"},
		{name: "custom height negative", req: SubmitRequest{Resolution: "custom", Width: 1280, Height: -5}, wantErr: "height"},
		{name: "custom width too large", req: SubmitRequest{Resolution: "custom", Width: 7681, Height: 720}, wantErr: "width"},
		{name: "custom height too large", req: SubmitRequest{Resolution: "custom", Width: 1280, Height: 4321}, wantErr: "height"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateParams(tc.req)
			if tc.wantErr != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCheckSubmissionGateOrder(t *testing.T) {
	// Quota rejection comes first; nothing else is consulted.
	_, err := checkSubmission(200, 100, SubmitRequest{CRF: intp(99)}, func() bool {
		t.Fatal("rate limiter consulted before quota")
		return false
	})
	var qerr *QuotaError
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, int64(200), qerr.DeclaredSize)

	// Parameter rejection beats the rate limiter.
	_, err = checkSubmission(50, 100, SubmitRequest{CRF: intp(99)}, func() bool {
		t.Fatal("rate limiter consulted despite invalid params")
		return false
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Rate limit is the last gate.
	_, err = checkSubmission(50, 100, SubmitRequest{}, func() bool { return false })
	require.ErrorIs(t, err, ErrRateLimited)

	// All gates pass.
	params, err := checkSubmission(50, 100, SubmitRequest{}, func() bool { return true })
	require.NoError(t, err)
	require.Equal(t, 28, params.CRF)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "clip.mp4", sanitizeFilename("clip.mp4"))
	require.Equal(t, "clip.mp4", sanitizeFilename("../../etc/clip.mp4"))
	require.Equal(t, "clip.mp4", sanitizeFilename("C:\\Videos\\clip.mp4"))
	require.Equal(t, "", sanitizeFilename(""))
	require.Equal(t, "", sanitizeFilename("."))
	require.Equal(t, "", sanitizeFilename(".."))
	require.Equal(t, "", sanitizeFilename("///"))
}
