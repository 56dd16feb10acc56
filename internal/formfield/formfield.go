// Package formfield adapts scan output to a host form engine: the field value
// is a JSON array of documents and validation yields a list of messages.
package formfield

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ivlev/scan2pdf/internal/pdfdoc"
)

// RequiredMessage is reported for a required field without documents.
const RequiredMessage = "Field is required."

// Field is the configuration a host form supplies for a scanner field.
type Field struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Document is one exported file in the field value. Data is base64 in JSON.
type Document struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// NewDocument wraps PDF bytes.
func NewDocument(name string, pdf []byte) Document {
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return Document{Name: name, MimeType: pdfdoc.MIMEType, Data: pdf}
}

// Encode serializes docs into the field value.
func Encode(docs []Document) (string, error) {
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses a field value. The empty value is an empty list.
func Decode(value string) ([]Document, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var docs []Document
	if err := json.Unmarshal([]byte(value), &docs); err != nil {
		return nil, fmt.Errorf("invalid field value: %w", err)
	}
	return docs, nil
}

// Validate returns the validation messages for value; none means valid.
func (f Field) Validate(value string) []string {
	docs, err := Decode(value)
	if err != nil {
		return []string{err.Error()}
	}
	var errs []string
	if f.Required && len(docs) == 0 {
		errs = append(errs, RequiredMessage)
	}
	for i, d := range docs {
		if d.MimeType != pdfdoc.MIMEType {
			errs = append(errs, fmt.Sprintf("Document %d is not a PDF.", i+1))
		}
		if len(d.Data) == 0 {
			errs = append(errs, fmt.Sprintf("Document %d is empty.", i+1))
		}
	}
	return errs
}
