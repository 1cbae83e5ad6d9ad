package web

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/JonMunkholm/sheetpipe/internal/core"
)

var (
	errNoFile        = errors.New("no file provided")
	errInvalidUpload = errors.New("invalid multipart form")
)

// handleImport replaces {table} with an uploaded CSV. The body is either a
// multipart form with a "file" part or the raw CSV. Query: create=true
// creates a missing table.
//
// The file is streamed into the store; memory stays at one write batch
// regardless of file size.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	create, err := boolParam(r, "create")
	if err != nil {
		s.respondBadRequest(w, r, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxImportSize)
	body, err := uploadReader(r)
	if err != nil {
		msg := importMessage(err)
		s.logRunError(r, err, "")
		respondErrorJSON(w, msg, statusFor(msg.Code), "")
		return
	}

	out, err := s.service.ImportCSV(r.Context(), tableParam(r), body, create)
	if err != nil {
		s.respondError(w, r, err, out.RunID)
		return
	}
	status := http.StatusOK
	if out.Result.Created {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, out)
}

// uploadReader returns the CSV stream of r: the "file" part of a multipart
// form, or the body itself.
func uploadReader(r *http.Request) (io.Reader, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errInvalidUpload
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, errInvalidUpload
		}
		if part.FormName() == "file" {
			return part, nil
		}
	}
}

// importMessage is the user message for an upload rejected before import.
func importMessage(err error) core.UserMessage {
	switch {
	case errors.Is(err, errNoFile):
		return core.UserMessage{Message: "No file provided", Action: "Attach the CSV as the \"file\" form field", Code: "CSV002"}
	case errors.Is(err, errInvalidUpload):
		return core.UserMessage{Message: "Invalid upload", Action: "Send a multipart form with a \"file\" field, or the raw CSV as the body", Code: "ARG001"}
	}
	return core.MapError(err)
}
