// File: internal/services/ai/errors.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Kind decides retry eligibility.
type Kind string

const (
	KindTransient Kind = "TRANSIENT"
	KindPermanent Kind = "PERMANENT"
	// KindExhausted is never produced by the adapter. The retry layer uses it
	// for transient failures whose retries are spent.
	KindExhausted Kind = "EXHAUSTED"
)

type Reason string

const (
	ReasonTimeout       Reason = "timeout"
	ReasonRateLimit     Reason = "rate_limit"
	ReasonServer        Reason = "server"
	ReasonNetwork       Reason = "network"
	ReasonEmptyResponse Reason = "empty_response"
	ReasonCancelled     Reason = "cancelled"

	ReasonInvalidParams Reason = "invalid_params"
	ReasonAuth          Reason = "auth"
	ReasonContentPolicy Reason = "content_policy"
	ReasonQuota         Reason = "quota"
	ReasonNotFound      Reason = "not_found"
	ReasonConfig        Reason = "config"
	ReasonUnknown       Reason = "unknown"
	ReasonUnexpected    Reason = "unexpected"
)

type Error struct {
	Kind       Kind
	Reason     Reason
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("AI %s error in %s: %s (caused by: %v)", e.Reason, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("AI %s error in %s: %s", e.Reason, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

func NewConfigError(msg string) *Error {
	return &Error{Kind: KindPermanent, Reason: ReasonConfig, Op: "config", Message: msg}
}

func NewValidationError(op, msg string) *Error {
	return &Error{Kind: KindPermanent, Reason: ReasonInvalidParams, Op: op, Message: msg}
}

func NewEmptyResponseError(op, msg string) *Error {
	return &Error{Kind: KindTransient, Reason: ReasonEmptyResponse, Op: op, Message: msg}
}

func NewTimeoutError(op string, cause error) *Error {
	return &Error{Kind: KindTransient, Reason: ReasonTimeout, Op: op, Message: "request timed out", Cause: cause}
}

// Classify maps a raw client error onto the retry taxonomy. It never returns a
// raw transport error: the result is nil or an *Error.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTransient, Reason: ReasonCancelled, Op: op, Message: "request cancelled", Cause: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(op, apiErr.HTTPStatusCode, apiErrorCode(apiErr), apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return fromStatus(op, reqErr.HTTPStatusCode, "", msg, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		if netErr != nil && netErr.Timeout() {
			return NewTimeoutError(op, err)
		}
		return &Error{Kind: KindTransient, Reason: ReasonNetwork, Op: op, Message: "transport failure", Cause: err}
	}

	return &Error{Kind: KindPermanent, Reason: ReasonUnknown, Op: op, Message: "unrecognised upstream failure", Cause: err}
}

func fromStatus(op string, status int, code, msg string, cause error) *Error {
	e := &Error{Op: op, StatusCode: status, Message: msg, Cause: cause}
	switch {
	case status == http.StatusRequestTimeout:
		e.Kind, e.Reason = KindTransient, ReasonTimeout
	case status == http.StatusTooManyRequests:
		// OpenAI reports an exhausted account balance as a 429 too.
		if code == "insufficient_quota" {
			e.Kind, e.Reason = KindPermanent, ReasonQuota
		} else {
			e.Kind, e.Reason = KindTransient, ReasonRateLimit
		}
	case status >= 500:
		e.Kind, e.Reason = KindTransient, ReasonServer
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind, e.Reason = KindPermanent, ReasonAuth
	case status == http.StatusUnprocessableEntity:
		e.Kind, e.Reason = KindPermanent, ReasonContentPolicy
	case status == http.StatusNotFound:
		e.Kind, e.Reason = KindPermanent, ReasonNotFound
	case status == http.StatusBadRequest:
		e.Kind, e.Reason = KindPermanent, ReasonInvalidParams
		if strings.Contains(code, "content_policy") || strings.Contains(code, "moderation") {
			e.Reason = ReasonContentPolicy
		}
	case status == 0:
		e.Kind, e.Reason = KindTransient, ReasonNetwork
	default:
		e.Kind, e.Reason = KindPermanent, ReasonUnknown
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func apiErrorCode(apiErr *openai.APIError) string {
	if apiErr.Code != nil {
		if s := fmt.Sprint(apiErr.Code); s != "" {
			return s
		}
	}
	return apiErr.Type
}
