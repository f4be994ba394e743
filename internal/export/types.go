// Package export renders a coded document, its code legend and its quote
// appendix as PDF or DOCX.
package export

import "errors"

// Format is the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request describes one export operation.
type Request struct {
	DocumentID      string
	Format          Format
	IncludeQuotes   bool
	IncludeComments bool
}

// Result is the generated file.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates the requested format is not pdf or docx.
	ErrUnsupportedFormat = errors.New("export format not supported")
	// ErrPDFDependencyMissing indicates chromium is not installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is not installed.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
