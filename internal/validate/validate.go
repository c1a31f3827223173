// Package validate holds field validators shared by the tool schemas.
package validate

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Error reports the first field that failed validation.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}

	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

func (e *Error) ErrorType() string { return "validation_error" }

// Errorf builds an *Error for field.
func Errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var (
	timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)
	emailRe     = regexp.MustCompile(`^[A-Za-z0-9._%+\-']+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)+$`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// CalendarDate accepts YYYY/MM/DD and returns the trimmed value.
func CalendarDate(field, value string) (string, error) {
	v := strings.TrimSpace(value)

	segments := strings.Split(v, "/")
	if len(segments) != 3 {
		return "", Errorf(field, "date must have the form YYYY/MM/DD, got %q", value)
	}

	for i, want := range []int{4, 2, 2} {
		if len(segments[i]) != want || !digitsRe.MatchString(segments[i]) {
			return "", Errorf(field, "date must have the form YYYY/MM/DD, got %q", value)
		}
	}

	if _, err := time.Parse("2006/01/02", v); err != nil {
		return "", Errorf(field, "%q is not a calendar date", value)
	}

	return v, nil
}

// Timestamp accepts YYYY-MM-DDTHH:MM:SSZ.
func Timestamp(field, value string) (string, error) {
	if !timestampRe.MatchString(value) {
		return "", Errorf(field, "timestamp must have the form YYYY-MM-DDTHH:MM:SSZ, got %q", value)
	}

	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return "", Errorf(field, "%q is not a valid instant", value)
	}

	return value, nil
}

// Email accepts a bare local@domain address.
func Email(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if !emailRe.MatchString(v) {
		return "", Errorf(field, "%q is not a valid email address", value)
	}

	return v, nil
}

// Emails validates every address in values.
func Emails(field string, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		addr, err := Email(field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}

	return out, nil
}

// OneOf checks that value belongs to allowed.
func OneOf(field, value string, allowed []string) (string, error) {
	if !slices.Contains(allowed, value) {
		return "", Errorf(field, "%q is not one of [%s]", value, strings.Join(allowed, ", "))
	}

	return value, nil
}
