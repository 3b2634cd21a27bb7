// Package extract turns uploaded documents and pasted text into the plain
// text stored as chapter content.
package extract

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is a supported source format.
type Kind string

const (
	KindUnknown Kind = ""
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindText    Kind = "text"
)

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeText = "text/plain"
)

var (
	// ErrUnsupportedKind is returned for any format other than PDF, DOCX or plain text.
	ErrUnsupportedKind = errors.New("unsupported file format")
	// ErrDecode is returned when bytes cannot be decoded as the declared kind.
	ErrDecode = errors.New("could not decode file")
)

// Result is extracted text plus what was lost on the way.
type Result struct {
	Text string `json:"-"`
	Kind Kind   `json:"kind"`
	// Pages is the page count for PDFs and zero otherwise.
	Pages int `json:"pages,omitempty"`
	// EmptyPages lists 1-based PDF pages that produced no text. Their
	// content is missing from Text.
	EmptyPages []int `json:"emptyPages,omitempty"`
}

// KindFromMediaType maps a declared media type to a Kind. Parameters such
// as charset are ignored.
func KindFromMediaType(mediaType string) Kind {
	parsed, _, err := mime.ParseMediaType(strings.TrimSpace(mediaType))
	if err != nil {
		return KindUnknown
	}
	switch parsed {
	case MediaTypePDF:
		return KindPDF
	case MediaTypeDOCX:
		return KindDOCX
	case MediaTypeText:
		return KindText
	default:
		return KindUnknown
	}
}

// KindFromFilename maps a file extension to a Kind.
func KindFromFilename(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt":
		return KindText
	default:
		return KindUnknown
	}
}

// DetectKind honors a declared media type when one is given. A missing or
// generic declaration (application/octet-stream) falls back to sniffing the
// content, then to the filename extension.
func DetectKind(declared, filename string, data []byte) Kind {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return KindFromMediaType(declared)
	}
	if kind := KindFromMediaType(mimetype.Detect(data).String()); kind != KindUnknown {
		return kind
	}
	return KindFromFilename(filename)
}

// Extract converts data of the given kind to plain text. No whitespace or
// page-break normalization is applied.
func Extract(data []byte, kind Kind) (Result, error) {
	switch kind {
	case KindPDF:
		return extractPDF(data)
	case KindDOCX:
		return extractDOCX(data)
	case KindText:
		return extractText(data)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, string(kind))
	}
}

// FromPaste wraps pasted text unchanged.
func FromPaste(text string) Result {
	return Result{Text: text, Kind: KindText}
}

func extractText(data []byte) (Result, error) {
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("%w: text is not valid UTF-8", ErrDecode)
	}
	return Result{Text: string(data), Kind: KindText}, nil
}
