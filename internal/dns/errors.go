package dns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind classifies vendor failures
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"       // bad credentials, never retried
	KindRateLimit ErrorKind = "rate_limit" // retried with backoff
	KindNotFound  ErrorKind = "not_found"  // benign on delete
	KindTransient ErrorKind = "transient"  // network class, retried
	KindRejected  ErrorKind = "rejected"   // vendor refused the request, never retried
)

// ProviderError is returned by every vendor adapter
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Code     string // vendor error code when known
	Err      error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s dns provider %s error (code=%s): %v", e.Provider, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s dns provider %s error: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewError creates a ProviderError
func NewError(provider string, kind ErrorKind, code string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Code: code, Err: err}
}

// KindOf returns the kind of a ProviderError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsNotFound reports whether err is a vendor not-found error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Retryable reports whether err is worth another attempt
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransient:
		return true
	}
	return false
}

// ClassifyStatus maps an HTTP status returned by a vendor API to a kind
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindNotFound
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

var (
	// Code=AuthFailure.SignatureFailure, ErrorCode: InvalidAccessKeyId.NotFound,
	// "code":"UNABLE_TO_AUTHENTICATE", "error_code":"APIGW.0301"
	codeField = regexp.MustCompile(`(?i)"?\b(?:error_?code|code)"?\s*[:=]\s*"?([A-Za-z][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)`)
	// Throttling.User: Request was denied ...
	codePrefix = regexp.MustCompile(`(?:^|: )([A-Z][a-z]+[A-Za-z]*(?:\.[A-Za-z0-9]+)+):`)
	// status code: 403, [status code 429], HTTP 503
	statusField = regexp.MustCompile(`(?i)\b(?:status(?:[ _]?code)?|http)\W{0,3}([45]\d\d)\b`)

	authPhrase      = regexp.MustCompile(`(?i)\b(?:unauthorized|forbidden|invalid credentials|access denied|authentication failed)\b`)
	rateLimitPhrase = regexp.MustCompile(`(?i)\b(?:too many requests|rate limit(?:ed)?|throttl(?:ed|ing))\b`)
	notFoundPhrase  = regexp.MustCompile(`(?i)\b(?:not found|does not exist|no such (?:record|domain|zone))\b`)
	transientPhrase = regexp.MustCompile(`(?i)\b(?:service unavailable|bad gateway|gateway timeout|connection reset|connection refused|i/o timeout)\b`)
)

// vendorCodes maps vendor error codes, or their family before the first
// dot, to a kind
var vendorCodes = map[string]ErrorKind{
	// tencentcloud
	"AuthFailure":                      KindAuth,
	"RequestLimitExceeded":             KindRateLimit,
	"ResourceNotFound":                 KindNotFound,
	"InvalidParameter.RecordIdInvalid": KindNotFound,
	"InternalError":                    KindTransient,
	// aliyun and baiducloud
	"InvalidAccessKeyId":    KindAuth,
	"SignatureDoesNotMatch": KindAuth,
	"IncompleteSignature":   KindAuth,
	"AccessDenied":          KindAuth,
	"Throttling":            KindRateLimit,
	"DomainRecordNotBelong": KindNotFound,
	"ServiceUnavailable":    KindTransient,
	"InternalFailure":       KindTransient,
	// huaweicloud
	"APIGW.0301": KindAuth,
	"APIGW.0303": KindAuth,
	"APIGW.0308": KindRateLimit,
	"DNS.0302":   KindNotFound,
	"DNS.0313":   KindNotFound,
	// godaddy
	"UNABLE_TO_AUTHENTICATE": KindAuth,
	"ACCESS_DENIED":          KindAuth,
	"TOO_MANY_REQUESTS":      KindRateLimit,
	"NOT_FOUND":              KindNotFound,
	"UNKNOWN_DOMAIN":         KindNotFound,
}

func kindOfCode(code string) (ErrorKind, bool) {
	if kind, ok := vendorCodes[code]; ok {
		return kind, true
	}
	if family, _, found := strings.Cut(code, "."); found {
		kind, ok := vendorCodes[family]
		return kind, ok
	}
	return "", false
}

// Classify inspects an opaque vendor SDK error and wraps it as a ProviderError.
// Vendor error codes decide first, then the HTTP status and finally a few
// whole phrases. Errors already classified are returned unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NewError(provider, KindTransient, "", err)
	}

	msg := err.Error()
	for _, re := range []*regexp.Regexp{codeField, codePrefix} {
		for _, m := range re.FindAllStringSubmatch(msg, -1) {
			if kind, ok := kindOfCode(m[1]); ok {
				return NewError(provider, kind, m[1], err)
			}
		}
	}

	if m := statusField.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		return NewError(provider, ClassifyStatus(status), m[1], err)
	}

	switch {
	case authPhrase.MatchString(msg):
		return NewError(provider, KindAuth, "", err)
	case rateLimitPhrase.MatchString(msg):
		return NewError(provider, KindRateLimit, "", err)
	case notFoundPhrase.MatchString(msg):
		return NewError(provider, KindNotFound, "", err)
	case transientPhrase.MatchString(msg):
		return NewError(provider, KindTransient, "", err)
	default:
		return NewError(provider, KindRejected, "", err)
	}
}
