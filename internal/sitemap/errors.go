package sitemap

import "fmt"

// FetchError is returned when a sitemap cannot be retrieved: network failure,
// non-2xx status or an empty body.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch sitemap %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch sitemap %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError is returned when sitemap content is not well-formed XML or has no
// usable document structure.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("parse sitemap %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse sitemap: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func errInvalidURL(input string, err error) error {
	if err != nil {
		return fmt.Errorf("invalid sitemap url %q: %w", input, err)
	}
	return fmt.Errorf("invalid sitemap url %q", input)
}
