package service

import "errors"

var (
	ErrMissingFile        = errors.New("both before and after images are required")
	ErrInvalidContentType = errors.New("files must be images")
	ErrInvalidKind        = errors.New(`invalid type parameter, must be "before" or "after"`)
	ErrEmptyBody          = errors.New("request body is empty")
	ErrFileTooLarge       = errors.New("file exceeds upload limit")
	ErrInvalidInput       = errors.New("invalid input")

	ErrNotFound    = errors.New("assessment not found")
	ErrDuplicateID = errors.New("assessment with this id already exists")
	ErrUpstream    = errors.New("upstream failure")
)

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingFile,
		ErrInvalidContentType,
		ErrInvalidKind,
		ErrEmptyBody,
		ErrFileTooLarge,
		ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
