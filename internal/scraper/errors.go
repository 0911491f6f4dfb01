package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures surfaced by adapters and the fetch layer.
type ErrorKind string

// Failure classifications.
const (
	KindNetwork    ErrorKind = "network_failure"
	KindHTTPStatus ErrorKind = "http_status_failure"
	KindBotWall    ErrorKind = "bot_wall_detected"
	KindTimeout    ErrorKind = "timeout_exceeded"
	KindParse      ErrorKind = "parse_failure"
	KindNotFound   ErrorKind = "not_found"
	KindUnknown    ErrorKind = "unknown"
)

// Stage names a step of the retrieval state machine.
type Stage string

// Retrieval stages. StageFailed is terminal.
const (
	StageDirect Stage = "direct"
	StageProxy  Stage = "proxy"
	StageFailed Stage = "failed"
)

var (
	// ErrNotFound is returned when no adapter resolves for a name or URL.
	ErrNotFound = errors.New("source not found")
	// ErrDuplicateSource is returned when registering an already known source id or name.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrOverlappingSource is returned when two adapters claim the same URLs.
	ErrOverlappingSource = errors.New("overlapping source url patterns")
	// ErrInvalidAdapter is returned for nil adapters or empty descriptors.
	ErrInvalidAdapter = errors.New("invalid adapter")
	// ErrImagesUnsupported is returned when an adapter lacks the chapter-image capability.
	ErrImagesUnsupported = errors.New("chapter images not supported")
	// ErrMalformed marks payloads that could not be decoded or parsed.
	ErrMalformed = errors.New("malformed payload")
)

// Attempt records the outcome of one stage of a retrieval.
type Attempt struct {
	Stage      Stage
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// FetchError is the terminal error of a retrieval. Stage names the last stage
// that failed; Attempts holds every transition in order.
type FetchError struct {
	URL        string
	Stage      Stage
	Kind       ErrorKind
	StatusCode int
	Attempts   []Attempt
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s stage failed (%s)", e.Stage, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " for %s", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SourceError attributes a failure to a named source.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewParseError reports markup or payload the adapter could not interpret.
func NewParseError(source, format string, args ...any) error {
	return &SourceError{Source: source, Kind: KindParse, Err: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

// WrapSource attaches the source name to err, keeping the underlying kind.
func WrapSource(source string, err error) error {
	if err == nil {
		return nil
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return err
	}
	return &SourceError{Source: source, Kind: KindOf(err), Err: err}
}

// KindOf classifies err into the failure taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) && srcErr.Kind != "" && srcErr.Kind != KindUnknown {
		return srcErr.Kind
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformed):
		return KindParse
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnknown
	}
}
