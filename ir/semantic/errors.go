package semantic

import (
	"errors"
	"fmt"
)

// ErrEmptyDocument matches every *EmptyDocumentError.
var ErrEmptyDocument = errors.New("document has no pages")

// ParseError reports an input that could not be read as a PDF.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmptyDocumentError reports a document without usable pages.
type EmptyDocumentError struct {
	Source string
}

func (e *EmptyDocumentError) Error() string {
	if e.Source == "" {
		return ErrEmptyDocument.Error()
	}
	return fmt.Sprintf("%s: %v", e.Source, ErrEmptyDocument)
}

func (e *EmptyDocumentError) Is(target error) bool { return target == ErrEmptyDocument }

// IndexError reports a page index outside [0, Count).
type IndexError struct {
	Index, Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("page index %d out of range [0,%d)", e.Index, e.Count)
}
