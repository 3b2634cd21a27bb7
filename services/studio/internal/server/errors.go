package server

import (
	"errors"
	"net/http"
	"strings"

	"chapterquiz/internal/util"
	"chapterquiz/pkg/ai"
	"chapterquiz/pkg/auth"
	"chapterquiz/pkg/extract"
	"chapterquiz/pkg/store"
	"chapterquiz/services/studio/internal/app"
)

const (
	codeAlreadyRegistered     = "already_registered"
	codeInvalidCredentials    = "invalid_credentials"
	codeValidation            = "validation_error"
	codeDecode                = "decode_error"
	codeUnsupportedFormat     = "unsupported_format"
	codeNotFound              = "not_found"
	codeGenerationFailed      = "generation_failed"
	codeGenerationUnavailable = "generation_unavailable"
	codeRateLimited           = "rate_limited"
	codeUnauthorized          = "unauthorized"
	codePayloadTooLarge       = "payload_too_large"
	codeInternal              = "internal_error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError classifies errors from the app layer. Messages of
// validation and auth errors are shown to users as is; everything else gets
// a generic message and is logged.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, codeAlreadyRegistered, auth.ErrAlreadyRegistered.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrEmailRequired),
		errors.Is(err, auth.ErrPasswordRequired),
		errors.Is(err, app.ErrPasswordMismatch),
		errors.Is(err, app.ErrContentRequired):
		writeError(w, http.StatusBadRequest, codeValidation, rootMessage(err))
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, app.ErrContentRequired.Error())
	case errors.Is(err, app.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, codeValidation, strings.TrimPrefix(err.Error(), app.ErrInvalidOption.Error()+": "))
	case errors.Is(err, app.ErrChapterNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, app.ErrChapterNotFound.Error())
	case errors.Is(err, extract.ErrUnsupportedKind):
		writeError(w, http.StatusUnsupportedMediaType, codeUnsupportedFormat, "unsupported file format: upload a PDF, DOCX or TXT file")
	case errors.Is(err, extract.ErrDecode):
		writeError(w, http.StatusUnprocessableEntity, codeDecode, "could not read text from the uploaded file")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "file too large")
	case errors.Is(err, app.ErrGeneratorUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeGenerationUnavailable, "text generation is not configured on this server")
	case errors.Is(err, ai.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, codeGenerationFailed, "the text generation service failed, please try again")
	default:
		if requestContextDone(r.Context()) {
			util.LoggerFromContext(r.Context()).Info("request canceled", "err", err)
		} else {
			util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		}
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// rootMessage returns the innermost sentinel's text for user-facing errors.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		auth.ErrEmailRequired,
		auth.ErrPasswordRequired,
		app.ErrPasswordMismatch,
		app.ErrContentRequired,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
