package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoPages is returned when there is nothing to verify.
	ErrNoPages = errors.New("no pages configured")

	// ErrEmptyBaseURL is returned when a page has a relative path but no base URL is set.
	ErrEmptyBaseURL = errors.New("base url is required for relative page paths")

	// ErrEmptyPagePath is returned when a page has no path.
	ErrEmptyPagePath = errors.New("page path is required")

	// ErrInvalidTimeout is returned when the navigation timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid navigation timeout: must be positive")

	// ErrEmptyMarker is returned when the violation marker is empty, which
	// would classify every console message as a violation.
	ErrEmptyMarker = errors.New("violation marker must not be empty")

	// ErrEmptyOutputDir is returned when no screenshot directory is set.
	ErrEmptyOutputDir = errors.New("output directory is required")

	// ErrDuplicateScreenshot is returned when two pages would write the same file.
	ErrDuplicateScreenshot = errors.New("duplicate screenshot path")
)
