package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWindow       = errors.New("invalid time window")
	ErrSourceUnavailable   = errors.New("ticket source unavailable")
	ErrSourceAuth          = errors.New("ticket source rejected credentials")
	ErrAnalysisUnavailable = errors.New("analysis service unavailable")
	ErrAnalysisParse       = errors.New("analysis output could not be parsed")
	ErrFormat              = errors.New("invalid analysis result")
	ErrDeliveryFailed      = errors.New("delivery failed")
	ErrAlreadyRunning      = errors.New("a run is already in progress")
)

// DeliveryError describes a failed delivery. It matches ErrDeliveryFailed.
type DeliveryError struct {
	Retryable  bool
	StatusCode int
	Attempts   int
	Err        error
}

func (e *DeliveryError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	msg := fmt.Sprintf("delivery failed (%s, attempts=%d", kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status=%d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}
