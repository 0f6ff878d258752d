package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
	"github.com/voiceinvoice/voice-invoice/internal/invoice"
)

const (
	maxAudioSize = 50 << 20 // 50MB
	maxBodySize  = 1 << 20
)

// errorResponse is the JSON body of every failed API call.
type errorResponse struct {
	Error  string                `json:"error"`
	Kind   errs.Kind             `json:"kind"`
	Fields []errs.FieldViolation `json:"fields,omitempty"`
	Raw    string                `json:"raw,omitempty"`
}

// writeError maps err to a status code and a JSON body. Internal failures
// are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	resp := errorResponse{
		Error:  err.Error(),
		Kind:   errs.KindOf(err),
		Fields: errs.Violations(err),
		Raw:    errs.Raw(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "kind", resp.Kind, "error", err)
		if resp.Kind == errs.KindInternal {
			resp.Error = "Internal server error"
		}
	} else {
		s.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "kind", resp.Kind, "error", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", "error", err)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleGenerateFromAudio accepts a multipart upload with an audio_file and
// an optional transcript_text field.
func (s *Server) handleGenerateFromAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize+maxBodySize)
	if err := r.ParseMultipartForm(maxAudioSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, errs.BadInput("audio file is too large, the maximum size is 50MB"))
			return
		}
		s.writeError(w, r, errs.BadInput("error parsing form: %v", err))
		return
	}

	f, header, err := r.FormFile("audio_file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.writeError(w, r, errs.BadInput("no audio_file was provided"))
			return
		}
		s.writeError(w, r, errs.BadInput("error reading audio_file: %v", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("reading audio upload: %w", err))
		return
	}

	result, err := s.service.GenerateFromAudio(r.Context(), header.Filename, data,
		header.Header.Get("Content-Type"), r.FormValue("transcript_text"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

// handleGenerateFromData renders an invoice from a JSON record.
func (s *Server) handleGenerateFromData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, r, errs.BadInput("error reading body: %v", err))
		return
	}

	rec, err := invoice.DecodeRecord(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.service.GenerateFromData(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

// handleExtract runs the text pipeline on a raw model response and returns
// the reconciled record without rendering.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, r, errs.BadInput("error reading body: %v", err))
		return
	}

	rec, err := s.service.Extract(r.Context(), string(body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// handleGetInvoice downloads a rendered invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := s.service.GetPDF(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(name)))
	w.Write(data)
}

// handleGetAudio downloads a stored recording
func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, contentType, err := s.service.GetAudio(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(name)))
	w.Write(data)
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.LoadModel(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.ModelStatus())
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.UnloadModel(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.ModelStatus())
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.ModelStatus())
}

func (s *Server) handleReloadTables(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.ReloadTables()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"catalog_items": n})
}
