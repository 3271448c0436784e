package service

import (
	"fmt"

	"github.com/yat0i811/CompShare/internal/core/compress"
	"github.com/yat0i811/CompShare/internal/core/job"
)

const (
	defaultCRF = 28
	maxCRF     = 51
	maxWidth   = 7680
	maxHeight  = 4320
)

// checkSubmission runs the synchronous gates in their documented order:
// quota, then parameters, then rate limit. allow is consulted last so a
// rejected submission never burns rate budget.
func checkSubmission(declaredSize, capacityBytes int64, req SubmitRequest, allow func() bool) (job.Params, error) {
	if declaredSize > capacityBytes {
		return job.Params{}, &QuotaError{DeclaredSize: declaredSize, CapacityBytes: capacityBytes}
	}
	params, err := validateParams(req)
	if err != nil {
		return job.Params{}, err
	}
	if !allow() {
		return job.Params{}, ErrRateLimited
	}
	return params, nil
}

// validateParams normalizes the submitted encoding knobs. Quality defaults
// to CRF 28 when neither crf nor bitrate_kbps is given; the two are
// mutually exclusive.
func validateParams(req SubmitRequest) (job.Params, error) {
	p := job.Params{Resolution: req.Resolution, HWAccel: req.HWAccel}
	if p.Resolution == "" {
		p.Resolution = compress.ModeSource
	}
	if !compress.ValidMode(p.Resolution) {
		return job.Params{}, &ValidationError{Field: "resolution", Reason: "unknown resolution mode"}
	}
	if p.Resolution == compress.ModeCustom {
		if req.Width <= 0 || req.Width > maxWidth {
			return job.Params{}, &ValidationError{Field: "width", Reason: fmt.Sprintf("must be between 1 and %d", maxWidth)}
		}
		if req.Height <= 0 || req.Height > maxHeight {
			return job.Params{}, &ValidationError{Field: "height", Reason: fmt.Sprintf("must be between 1 and %d", maxHeight)}
		}
		p.Width, p.Height = req.Width, req.Height
	}

	switch {
	case req.CRF != nil && req.BitrateKbps != nil:
		return job.Params{}, &ValidationError{Field: "crf", Reason: "crf and bitrate_kbps are mutually exclusive"}
	case req.BitrateKbps != nil:
		if *req.BitrateKbps <= 0 {
			return job.Params{}, &ValidationError{Field: "bitrate_kbps", Reason: "must be positive"}
		}
		p.BitrateKbps = *req.BitrateKbps
	case req.CRF != nil:
		if *req.CRF < 0 || *req.CRF > maxCRF {
			return job.Params{}, &ValidationError{Field: "crf", Reason: fmt.Sprintf("must be between 0 and %d", maxCRF)}
		}
		p.CRF = *req.CRF
	default:
		p.CRF = defaultCRF
	}
	return p, nil
}
