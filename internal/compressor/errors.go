package compressor

import (
	"errors"
	"fmt"
)

// ErrorCode classifies compression failures.
type ErrorCode string

const (
	// Input errors
	ErrorInvalidTarget     ErrorCode = "INVALID_TARGET"
	ErrorInvalidBounds     ErrorCode = "INVALID_BOUNDS"
	ErrorDecodeFailed      ErrorCode = "DECODE_FAILED"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Codec errors
	ErrorCodecFailed ErrorCode = "CODEC_FAILED"
)

var errMissingSource = errors.New("no decoded source image")

// Error is a structured compression error. None of its codes are retryable.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewInvalidTargetError(targetBytes int64) *Error {
	return &Error{
		Code:    ErrorInvalidTarget,
		Message: fmt.Sprintf("target size must be positive, got %d bytes", targetBytes),
	}
}

func NewInvalidBoundsError(minQuality, maxQuality int) *Error {
	return &Error{
		Code:    ErrorInvalidBounds,
		Message: fmt.Sprintf("quality bounds must satisfy 0 < min <= max <= 100, got [%d, %d]", minQuality, maxQuality),
	}
}

func NewDecodeError(cause error) *Error {
	return &Error{
		Code:    ErrorDecodeFailed,
		Message: "source image could not be decoded",
		Cause:   cause,
	}
}

func NewUnsupportedFormatError(format string) *Error {
	return &Error{
		Code:    ErrorUnsupportedFormat,
		Message: fmt.Sprintf("unsupported format: %s", format),
	}
}

func NewCodecError(cause error) *Error {
	return &Error{
		Code:    ErrorCodecFailed,
		Message: "codec failed",
		Cause:   cause,
	}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInputError reports whether err was caused by the caller's input rather
// than by the codec.
func IsInputError(err error) bool {
	switch CodeOf(err) {
	case ErrorInvalidTarget, ErrorInvalidBounds, ErrorDecodeFailed, ErrorUnsupportedFormat:
		return true
	default:
		return false
	}
}
