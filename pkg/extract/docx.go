package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxBodyPart = "word/document.xml"
	// maxDocumentXML caps the decompressed size of the body part.
	maxDocumentXML = 64 << 20
)

// extractDOCX returns the text of the body's top-level paragraphs joined by
// "\n". Only run text of the paragraph itself is kept: tables, drawings and
// text boxes are skipped.
func extractDOCX(data []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: open docx: %v", ErrDecode, err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			part = f
			break
		}
	}
	if part == nil {
		return Result{}, fmt.Errorf("%w: docx has no %s", ErrDecode, docxBodyPart)
	}
	rc, err := part.Open()
	if err != nil {
		return Result{}, fmt.Errorf("%w: open %s: %v", ErrDecode, docxBodyPart, err)
	}
	defer rc.Close()

	paragraphs, err := bodyParagraphs(io.LimitReader(rc, maxDocumentXML))
	if err != nil {
		return Result{}, fmt.Errorf("%w: parse %s: %v", ErrDecode, docxBodyPart, err)
	}
	return Result{Text: strings.Join(paragraphs, "\n"), Kind: KindDOCX}, nil
}

func bodyParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		stack      []string
		paragraphs []string
		current    strings.Builder
		paraDepth  int // stack depth of the open body paragraph, 0 when none
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			stack = append(stack, el.Name.Local)
			depth := len(stack)
			if paraDepth == 0 {
				if el.Name.Local == "p" && depth >= 2 && stack[depth-2] == "body" {
					paraDepth = depth
					current.Reset()
				}
				continue
			}
			if !inParagraphRun(stack, paraDepth) {
				continue
			}
			switch el.Name.Local {
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.CharData:
			if paraDepth > 0 && stack[len(stack)-1] == "t" && inParagraphRun(stack, paraDepth) {
				current.Write(el)
			}
		case xml.EndElement:
			if paraDepth > 0 && len(stack) == paraDepth && el.Name.Local == "p" {
				paragraphs = append(paragraphs, current.String())
				paraDepth = 0
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return paragraphs, nil
}

// inParagraphRun reports whether the innermost element sits directly in a run
// of the open paragraph, either as its child or through a hyperlink. Runs
// inside drawings and text boxes nest deeper and do not match.
func inParagraphRun(stack []string, paraDepth int) bool {
	if len(stack) <= paraDepth {
		return false
	}
	between := stack[paraDepth : len(stack)-1]
	switch len(between) {
	case 1:
		return between[0] == "r"
	case 2:
		return between[0] == "hyperlink" && between[1] == "r"
	default:
		return false
	}
}
