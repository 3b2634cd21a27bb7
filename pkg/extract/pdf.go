package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates page text in document order. Pages that are null
// or fail to yield text contribute nothing and are reported in EmptyPages.
func extractPDF(data []byte) (res Result, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("%w: malformed pdf: %v", ErrDecode, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: open pdf: %v", ErrDecode, err)
	}
	totalPages := reader.NumPage()
	res = Result{Kind: KindPDF, Pages: totalPages}
	var b strings.Builder
	for i := 1; i <= totalPages; i++ {
		text := pageText(reader, i)
		if text == "" {
			res.EmptyPages = append(res.EmptyPages, i)
			continue
		}
		b.WriteString(text)
	}
	res.Text = b.String()
	return res, nil
}

func pageText(reader *pdf.Reader, i int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	page := reader.Page(i)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
