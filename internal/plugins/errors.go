package plugins

import (
	"errors"
	"fmt"
	"strings"
)

// FetchError reports a failed fetch-and-checkout of a remote repository.
// Output carries the subprocess diagnostic text verbatim so callers can
// surface or persist it unchanged.
type FetchError struct {
	URL    string
	Ref    string
	Output string
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = "fetch failed"
	}
	return fmt.Sprintf("fetch %s@%s: %s", e.URL, e.Ref, msg)
}

func AsFetchError(err error) (*FetchError, bool) {
	if err == nil {
		return nil, false
	}
	var out *FetchError
	if errors.As(err, &out) && out != nil {
		return out, true
	}
	return nil, false
}

// ValidationError reports a malformed or unacceptable plugin source:
// incomplete descriptor, missing skills directory, duplicate source URL.
// Missing lists the absent required descriptor fields when that is the
// failure.
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return "invalid plugin source"
}

func AsValidationError(err error) (*ValidationError, bool) {
	if err == nil {
		return nil, false
	}
	var out *ValidationError
	if errors.As(err, &out) && out != nil {
		return out, true
	}
	return nil, false
}

// NotFoundError reports an unknown record id. Kept distinct from
// ValidationError so callers can map it to a not-found response.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func IsNotFound(err error) bool {
	var out *NotFoundError
	return errors.As(err, &out)
}
