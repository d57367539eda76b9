package htmldoc

import "fmt"

// InvalidDocumentError is returned when content cannot become a canonical
// document, either at commit time or while parsing and rendering.
type InvalidDocumentError struct {
	Reason string
	Err    error
}

func (e *InvalidDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("htmldoc: invalid document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("htmldoc: invalid document: %s", e.Reason)
}

func (e *InvalidDocumentError) Unwrap() error { return e.Err }

// ElementNotFoundError is returned when an identity does not resolve to an
// element of the current document.
type ElementNotFoundError struct {
	Identity string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("htmldoc: element not found: %s", e.Identity)
}

// InvalidEditError is returned when an edit cannot apply to the element it
// targets (text on a void element, editing the identity attribute, ...).
type InvalidEditError struct {
	Identity string
	Reason   string
}

func (e *InvalidEditError) Error() string {
	return fmt.Sprintf("htmldoc: invalid edit on %s: %s", e.Identity, e.Reason)
}
