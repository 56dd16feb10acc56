// Package scanerr holds the error taxonomy shared by every stage of the scan
// pipeline and by the collaborators it drives.
package scanerr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure independently of the stage that raised it.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNoDocumentFound    Code = "NO_DOCUMENT_FOUND"
	CodeNotAQuadrilateral  Code = "NOT_A_QUADRILATERAL"
	CodeDegenerateGeometry Code = "DEGENERATE_GEOMETRY"
	CodeExternalLibrary    Code = "EXTERNAL_LIBRARY"
)

// ScanError is a structured pipeline failure.
type ScanError struct {
	Code    Code
	Stage   string
	Message string
	Cause   error
}

func (e *ScanError) Error() string {
	prefix := string(e.Code)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Stage)
	}
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Code]
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that errors.Is(err, ErrNoDocumentFound) holds for any
// ScanError carrying that code, whatever its stage or message.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput       = &ScanError{Code: CodeInvalidInput}
	ErrNoDocumentFound    = &ScanError{Code: CodeNoDocumentFound}
	ErrNotAQuadrilateral  = &ScanError{Code: CodeNotAQuadrilateral}
	ErrDegenerateGeometry = &ScanError{Code: CodeDegenerateGeometry}
	ErrExternalLibrary    = &ScanError{Code: CodeExternalLibrary}
)

var defaultMessages = map[Code]string{
	CodeInvalidInput:       "image is empty or could not be decoded",
	CodeNoDocumentFound:    "no document contour found",
	CodeNotAQuadrilateral:  "document must have 4 corners",
	CodeDegenerateGeometry: "document corners do not span an area",
	CodeExternalLibrary:    "image or PDF library failed",
}

var userMessages = map[Code]string{
	CodeInvalidInput:       "The image could not be read. Please try another photo.",
	CodeNoDocumentFound:    "No document was found in the image. Place the page on a contrasting background and try again.",
	CodeNotAQuadrilateral:  "The document edges are not clearly visible. Make sure all four corners are in the frame.",
	CodeDegenerateGeometry: "The detected document is too small. Move closer and try again.",
	CodeExternalLibrary:    "Processing failed. Please try again.",
}

func newError(code Code, stage, format string, args ...interface{}) *ScanError {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &ScanError{Code: code, Stage: stage, Message: msg}
}

func InvalidInput(stage, format string, args ...interface{}) *ScanError {
	return newError(CodeInvalidInput, stage, format, args...)
}

func NoDocumentFound(stage, format string, args ...interface{}) *ScanError {
	return newError(CodeNoDocumentFound, stage, format, args...)
}

func NotAQuadrilateral(stage, format string, args ...interface{}) *ScanError {
	return newError(CodeNotAQuadrilateral, stage, format, args...)
}

func DegenerateGeometry(stage, format string, args ...interface{}) *ScanError {
	return newError(CodeDegenerateGeometry, stage, format, args...)
}

// ExternalLibrary wraps a failure reported by the image or PDF collaborator.
// A cause that is already a ScanError is returned unchanged.
func ExternalLibrary(stage string, cause error) error {
	var se *ScanError
	if errors.As(cause, &se) {
		return cause
	}
	return &ScanError{Code: CodeExternalLibrary, Stage: stage, Cause: cause}
}

// CodeOf returns the code of the first ScanError in the chain, or "" if none.
func CodeOf(err error) Code {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// UserMessage is the text shown to the user when a scan fails.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[CodeOf(err)]; ok {
		return msg
	}
	return userMessages[CodeExternalLibrary]
}
