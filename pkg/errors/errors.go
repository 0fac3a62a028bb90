// Package errors provides the engine's structured error type and the spec's
// error kinds. HTTP-facing code renders an AppError as {detail: string}.
package errors

import "fmt"

// Kind enumerates the propagation-policy categories from the error handling
// design: per-item/per-source/per-task failures are logged and swallowed by
// their caller; ValidationError is the only kind the HTTP boundary surfaces
// directly as 4xx.
type Kind string

const (
	KindConfigInvalid       Kind = "ConfigInvalid"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamBadStatus   Kind = "UpstreamBadStatus"
	KindUpstreamMalformed   Kind = "UpstreamMalformed"
	KindCacheUnavailable    Kind = "CacheUnavailable"
	KindStoreTransient      Kind = "StoreTransient"
	KindStorePermanent      Kind = "StorePermanent"
	KindItemScoring         Kind = "ItemScoringError"
	KindTaskTimeout         Kind = "TaskTimeout"
	KindValidation          Kind = "ValidationError"
)

// AppError is the engine's canonical error: an HTTP status, a kind, a
// message safe to show callers, optional details, and a wrapped cause.
type AppError struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"-"`
	Message string `json:"-"`
	Details string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Detail is the spec §6 JSON error envelope: HTTP status + {detail: string}.
type Detail struct {
	Detail string `json:"detail"`
}

// ToDetail renders the error for the HTTP boundary per spec §6.
func (e *AppError) ToDetail() Detail {
	if e.Details != "" {
		return Detail{Detail: e.Message + ": " + e.Details}
	}
	return Detail{Detail: e.Message}
}

func newErr(code int, kind Kind, message string, err error) *AppError {
	return &AppError{Code: code, Kind: kind, Message: message, Err: err}
}

func NewConfigInvalid(message string, err error) *AppError {
	return newErr(500, KindConfigInvalid, message, err)
}

func NewUpstreamUnavailable(message string, err error) *AppError {
	return newErr(502, KindUpstreamUnavailable, message, err)
}

func NewUpstreamBadStatus(message string, statusCode int, err error) *AppError {
	e := newErr(502, KindUpstreamBadStatus, message, err)
	e.Details = fmt.Sprintf("upstream status %d", statusCode)
	return e
}

func NewUpstreamMalformed(message string, err error) *AppError {
	return newErr(502, KindUpstreamMalformed, message, err)
}

func NewCacheUnavailable(message string, err error) *AppError {
	return newErr(200, KindCacheUnavailable, message, err)
}

func NewStoreTransient(message string, err error) *AppError {
	return newErr(503, KindStoreTransient, message, err)
}

func NewStorePermanent(message string, err error) *AppError {
	return newErr(500, KindStorePermanent, message, err)
}

func NewItemScoring(newsID, title, sourceID string, err error) *AppError {
	e := newErr(200, KindItemScoring, "item scoring failed", err)
	e.Details = fmt.Sprintf("news_id=%s title=%q source_id=%s", newsID, title, sourceID)
	return e
}

func NewTaskTimeout(task string, err error) *AppError {
	return newErr(200, KindTaskTimeout, fmt.Sprintf("task %q timed out", task), err)
}

func NewValidation(message string) *AppError {
	return newErr(400, KindValidation, message, nil)
}

// IsAppError reports whether err is (or wraps) an *AppError.
func IsAppError(err error) (*AppError, bool) {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
