// Package failure defines the typed error kinds surfaced by the pipeline.
// Every error that crosses a stage boundary is normalized into an *Error so
// callers can branch on Kind instead of matching strings.
package failure

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind classifies a pipeline error.
type Kind int

const (
	// KindFatal is the zero value: anything unclassified is not retried.
	KindFatal Kind = iota
	KindPrecondition
	KindTransient
	KindExtraction
	KindTimeout
)

var kindNames = [...]string{
	"fatal",
	"precondition",
	"transient",
	"extraction",
	"timeout",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets Kind appear as a string in JSON results.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("failure: unknown kind %q", string(b))
}

// ExcerptLen is the number of runes of raw model output kept on extraction
// failures.
const ExcerptLen = 500

// Error is the normalized pipeline error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`

	// Reason and RawExcerpt are set for KindExtraction.
	Reason     string `json:"reason,omitempty"`
	RawExcerpt string `json:"raw_excerpt,omitempty"`

	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindTimeout})
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// Precondition reports a violated stage prerequisite.
func Precondition(op, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a retryable backend error whose retry budget is exhausted.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: errText(err), Err: err}
}

// Fatal wraps a non-retryable error.
func Fatal(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Message: errText(err), Err: err}
}

// Extraction reports that structured recovery failed for raw.
func Extraction(reason, raw string) *Error {
	return &Error{
		Kind:       KindExtraction,
		Op:         "extract",
		Message:    "could not recover structured output (" + reason + ")",
		Reason:     reason,
		RawExcerpt: Excerpt(raw, ExcerptLen),
	}
}

// Timeout reports a long-running job that exceeded its wall-clock budget.
func Timeout(op string, after time.Duration) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: fmt.Sprintf("no terminal state after %s", after)}
}

// Join folds the failures of parallel parts of op into one *Error. The
// result is KindTimeout when any part timed out, so the caller can poll
// again; otherwise it takes the kind of the first failure. Nil errors are
// ignored and Join returns nil when none remain.
func Join(op string, errs ...error) *Error {
	var parts []error
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	kind := KindOf(parts[0])
	for _, err := range parts {
		if KindOf(err) == KindTimeout {
			kind = KindTimeout
		}
	}
	j := joined(parts)
	return &Error{Kind: kind, Op: op, Message: j.Error(), Err: j}
}

// joined is errors.Join with a single-line message.
type joined []error

func (j joined) Error() string {
	msgs := make([]string, len(j))
	for i, err := range j {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (j joined) Unwrap() []error { return j }

// As returns err as an *Error if one is in its chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindFatal for unclassified errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return KindFatal
}

// Normalize converts any error into an *Error, keeping an existing one as-is.
func Normalize(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return fe
	}
	return Fatal(op, err)
}

// UserMessage maps an error to the message shown to an officer.
func UserMessage(err error) string {
	fe, ok := As(err)
	if !ok {
		return "Something went wrong: " + errText(err)
	}
	switch fe.Kind {
	case KindPrecondition:
		return fe.Message
	case KindTransient:
		return "Service busy, try again shortly."
	case KindTimeout:
		return "Generation is taking too long. Retry to poll again or abandon this step."
	case KindExtraction:
		return "The model returned output we could not read. Review the raw excerpt and correct it via chat refinement."
	default:
		low := strings.ToLower(fe.Message)
		if strings.Contains(low, "quota") || strings.Contains(low, "permission") || strings.Contains(low, "api key") {
			return "Backend access problem, contact administrator."
		}
		return "Request failed: " + fe.Message
	}
}

// Excerpt returns at most n runes of s.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
