package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"chapterquiz/pkg/domain"
	"chapterquiz/pkg/extract"
	"chapterquiz/pkg/render"
	"chapterquiz/services/studio/internal/app"
)

type pasteRequest struct {
	Title        string `json:"title"`
	ISBN         string `json:"isbn"`
	ChapterLabel string `json:"chapterLabel"`
	Content      string `json:"content"`
}

// chapterItem is a chapter summary plus the labels shown in listings and
// chapter pickers.
type chapterItem struct {
	domain.ChapterSummary
	DisplayTitle string `json:"displayTitle"`
	DisplayISBN  string `json:"displayIsbn"`
	DisplayName  string `json:"displayName"`
}

func newChapterItem(c domain.ChapterSummary) chapterItem {
	return chapterItem{
		ChapterSummary: c,
		DisplayTitle:   render.DisplayTitle(c.Title),
		DisplayISBN:    render.DisplayISBN(c.ISBN),
		DisplayName:    render.Subtitle(render.DisplayTitle(c.Title), c.ChapterLabel),
	}
}

type chapterCreatedResponse struct {
	Chapter    chapterItem  `json:"chapter"`
	Kind       extract.Kind `json:"kind"`
	Pages      int          `json:"pages,omitempty"`
	EmptyPages []int        `json:"emptyPages"`
}

// handleCreateChapter accepts either a multipart form (file, or a content
// field when no file is attached) or a JSON body with pasted content.
// An attached file wins over pasted content.
func (s *Server) handleCreateChapter(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		saved app.SavedChapter
		err   error
	)
	switch mediaType {
	case "multipart/form-data":
		saved, err = s.saveMultipart(w, r, identity)
	case "application/json", "":
		var req pasteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Content == "" {
			err = app.ErrContentRequired
			break
		}
		meta := app.ChapterMeta{Title: req.Title, ISBN: req.ISBN, ChapterLabel: req.ChapterLabel}
		saved, err = s.app.SavePaste(r.Context(), identity, meta, req.Content)
	default:
		writeError(w, http.StatusUnsupportedMediaType, codeUnsupportedFormat, "send multipart/form-data or application/json")
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	emptyPages := saved.Extraction.EmptyPages
	if emptyPages == nil {
		emptyPages = []int{}
	}
	writeJSON(w, http.StatusCreated, chapterCreatedResponse{
		Chapter:    newChapterItem(saved.Chapter.Summary()),
		Kind:       saved.Extraction.Kind,
		Pages:      saved.Extraction.Pages,
		EmptyPages: emptyPages,
	})
}

func (s *Server) saveMultipart(w http.ResponseWriter, r *http.Request, identity domain.Identity) (app.SavedChapter, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return app.SavedChapter{}, err
		}
		return app.SavedChapter{}, errors.Join(app.ErrContentRequired, err)
	}
	meta := app.ChapterMeta{
		Title:        r.FormValue("title"),
		ISBN:         r.FormValue("isbn"),
		ChapterLabel: r.FormValue("chapterLabel"),
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		content := r.FormValue("content")
		if content == "" {
			return app.SavedChapter{}, app.ErrContentRequired
		}
		return s.app.SavePaste(r.Context(), identity, meta, content)
	}
	if err != nil {
		return app.SavedChapter{}, errors.Join(app.ErrContentRequired, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return app.SavedChapter{}, err
	}
	return s.app.SaveUpload(r.Context(), identity, meta, app.Upload{
		Filename:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	})
}

type quizRequest struct {
	Difficulty      string `json:"difficulty"`
	QuestionType    string `json:"questionType"`
	CountMCQ        *int   `json:"countMcq"`
	CountSubjective *int   `json:"countSubjective"`
	CountTF         *int   `json:"countTf"`
}

type cheatSheetRequest struct {
	Level string `json:"level"`
}

type generationResponse struct {
	Chapter     domain.ChapterSummary `json:"chapter"`
	Text        string                `json:"text"`
	HTML        string                `json:"html"`
	PrintLink   string                `json:"printLink"`
	Truncated   bool                  `json:"truncated"`
	SourceChars int                   `json:"sourceChars"`
}

// artifact describes how one kind of generated text is titled and saved.
type artifact struct {
	title    string
	filename string
}

var (
	quizArtifact       = artifact{title: "Quiz", filename: render.QuizFilename}
	cheatSheetArtifact = artifact{title: "Cheat Sheet", filename: render.CheatSheetFilename}
)

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	id, ok := chapterID(w, r)
	if !ok {
		return
	}
	format, ok := outputFormat(w, r)
	if !ok {
		return
	}
	var req quizRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	gen, err := s.app.GenerateQuiz(r.Context(), identity, id, app.QuizOptions{
		Difficulty:      req.Difficulty,
		QuestionType:    req.QuestionType,
		CountMCQ:        req.CountMCQ,
		CountSubjective: req.CountSubjective,
		CountTF:         req.CountTF,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeGeneration(w, r, format, quizArtifact, gen)
}

func (s *Server) handleCheatSheet(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	id, ok := chapterID(w, r)
	if !ok {
		return
	}
	format, ok := outputFormat(w, r)
	if !ok {
		return
	}
	var req cheatSheetRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	gen, err := s.app.GenerateCheatSheet(r.Context(), identity, id, app.CheatSheetOptions{Level: req.Level})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeGeneration(w, r, format, cheatSheetArtifact, gen)
}

const (
	formatJSON  = "json"
	formatText  = "text"
	formatPrint = "print"
)

func outputFormat(w http.ResponseWriter, r *http.Request) (string, bool) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "":
		return formatJSON, true
	case formatJSON, formatText, formatPrint:
		return format, true
	}
	writeError(w, http.StatusBadRequest, codeValidation, "format must be one of json, text, print")
	return "", false
}

func (s *Server) writeGeneration(w http.ResponseWriter, r *http.Request, format string, a artifact, gen app.Generation) {
	switch format {
	case formatText:
		file := render.Downloadable(gen.Text, a.filename)
		w.Header().Set("Content-Type", file.MediaType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(file.Body)
		return
	case formatPrint:
		doc, err := render.Printable(gen.Text, a.title, gen.Chapter.Title, gen.Chapter.ChapterLabel)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", render.HTMLMediaType)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, doc)
		return
	}

	html, err := render.DisplayHTML(gen.Text)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	doc, err := render.Printable(gen.Text, a.title, gen.Chapter.Title, gen.Chapter.ChapterLabel)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generationResponse{
		Chapter:     gen.Chapter,
		Text:        render.Display(gen.Text),
		HTML:        html,
		PrintLink:   render.PrintLink(doc),
		Truncated:   gen.Truncated,
		SourceChars: gen.SourceChars,
	})
}
