package errors

import (
	"errors"
	"fmt"
)

type Category string

const (
	CategoryInvalidInput    Category = "invalid_input"
	CategoryConfiguration   Category = "configuration"
	CategoryIOFailure       Category = "io_failure"
	CategoryInternalFailure Category = "internal_failure"
)

// Configuration codes. They abort startup rather than being handled per call.
const (
	CodeUnknownReportType     = "unknown_report_type"
	CodeSchemaDocumentMissing = "schema_document_missing"
	CodeSchemaDocumentInvalid = "schema_document_invalid"
	CodeRegistryInconsistent  = "registry_inconsistent"
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// Configuration builds a non-retryable configuration error from a format string.
func Configuration(code, hint, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), CategoryConfiguration, code, hint, false)
}

func IsConfiguration(err error) bool {
	return CategoryOf(err) == CategoryConfiguration
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
