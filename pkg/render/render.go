// Package render turns generated text into on-screen, downloadable and
// printable forms.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
)

const (
	QuizFilename       = "quiz.txt"
	CheatSheetFilename = "cheat_sheet.txt"
	PlainTextMediaType = "text/plain; charset=utf-8"
	HTMLMediaType      = "text/html; charset=utf-8"
)

// Artifact is a file the caller can hand to a user as a download.
type Artifact struct {
	Filename  string
	MediaType string
	Body      []byte
}

// Display returns generated text unchanged for inline rendering.
func Display(text string) string {
	return text
}

// markdown renders without passing raw HTML through.
var markdown = goldmark.New()

// DisplayHTML renders generated text as markdown.
func DisplayHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Downloadable wraps text as a plain-text file named filename.
func Downloadable(text, filename string) Artifact {
	return Artifact{
		Filename:  filename,
		MediaType: PlainTextMediaType,
		Body:      []byte(text),
	}
}

var printableTemplate = template.Must(template.New("printable").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} – {{.ChapterLabel}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; }
h1, h2 { text-align: center; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<h2>{{.Subtitle}}</h2>
<div>{{.Body}}</div>
</body>
</html>
`))

type printableData struct {
	Title        string
	ChapterLabel string
	Subtitle     string
	Body         template.HTML
}

// Printable builds a standalone HTML document titled "<title> – <label>"
// with the book title and chapter label as its subheading. Text is escaped
// and every newline becomes <br>. Styling is inline so the page works offline.
func Printable(text, title, bookTitle, chapterLabel string) (string, error) {
	escaped := template.HTMLEscapeString(text)
	data := printableData{
		Title:        title,
		ChapterLabel: chapterLabel,
		Subtitle:     Subtitle(bookTitle, chapterLabel),
		Body:         template.HTML(strings.ReplaceAll(escaped, "\n", "<br>")),
	}
	var buf bytes.Buffer
	if err := printableTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render printable: %w", err)
	}
	return buf.String(), nil
}

// PrintLink encodes a printable document as a data URI that opens in a new tab.
func PrintLink(document string) string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(document))
}

// Subtitle is the "<book title> – <chapter label>" heading of printed artifacts.
func Subtitle(bookTitle, chapterLabel string) string {
	return bookTitle + " – " + chapterLabel
}

// DisplayTitle falls back to "Untitled" for chapters saved without a title.
func DisplayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}

// DisplayISBN falls back to "N/A" for chapters saved without an ISBN.
func DisplayISBN(isbn string) string {
	if strings.TrimSpace(isbn) == "" {
		return "N/A"
	}
	return isbn
}
