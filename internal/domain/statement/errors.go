package statement

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTablesFound indicates the document carried no recognizable ledger table.
	ErrNoTablesFound = errors.New("no tables found in document")
	// ErrUnsupportedMedia marks an upload whose content type is not accepted.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrUnsupportedEncryption marks a PDF protected with AES, which the
	// reader cannot decrypt. It is an unsupported media error.
	ErrUnsupportedEncryption = fmt.Errorf("%w: AES-encrypted PDF", ErrUnsupportedMedia)
)

// InvalidInputError is returned for uploads the pipeline cannot accept at all,
// such as an unsupported content type.
type InvalidInputError struct {
	Message string
	Err     error
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Message
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// AuthenticationError is returned when the document password is wrong.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "incorrect document password"
	}
	return fmt.Sprintf("incorrect document password: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ExtractionError is returned when the document cannot be turned into a ledger.
type ExtractionError struct {
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return "extraction failed: " + e.Err.Error()
	case e.Err == nil:
		return "extraction failed: " + e.Message
	default:
		return fmt.Sprintf("extraction failed: %s: %v", e.Message, e.Err)
	}
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SchemaError is returned when a required column is missing or unusable.
type SchemaError struct {
	Column  string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Message)
}

// ProcessingError wraps any other failure inside the pipeline.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed at %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Error kinds reported to clients.
const (
	KindInvalidInput   = "invalid_input"
	KindAuthentication = "authentication_failed"
	KindExtraction     = "extraction_failed"
	KindSchema         = "schema_error"
	KindProcessing     = "processing_error"
)

// KindOf classifies err into one of the client-facing error kinds.
func KindOf(err error) string {
	var (
		invalid *InvalidInputError
		auth    *AuthenticationError
		extract *ExtractionError
		schema  *SchemaError
	)
	switch {
	case errors.As(err, &invalid):
		return KindInvalidInput
	case errors.As(err, &auth):
		return KindAuthentication
	case errors.As(err, &extract):
		return KindExtraction
	case errors.As(err, &schema):
		return KindSchema
	default:
		return KindProcessing
	}
}
