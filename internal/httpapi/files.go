package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"securefiles/server/internal/files"
	"securefiles/server/internal/model"
	"securefiles/server/internal/token"

	"github.com/gorilla/mux"
)

type dashboardResponse struct {
	User  model.User           `json:"user"`
	Files []model.UploadedFile `json:"files"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	list, err := s.files.List(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "list files failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{User: u, Files: list})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.List(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "list files failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file field")
		return
	}
	defer f.Close()

	saved, err := s.files.Upload(r.Context(), u, hdr.Filename, hdr.Header.Get("Content-Type"), f, hdr.Size)
	switch {
	case errors.Is(err, files.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	case errors.Is(err, token.ErrIneligible):
		writeError(w, http.StatusForbidden, "forbidden", "only operations users can upload")
		return
	case err != nil:
		s.log.Error(r.Context(), "upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to store file")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

type downloadLinkResponse struct {
	DownloadLink string `json:"download-link"`
	Message      string `json:"message"`
}

func (s *Server) handleDownloadLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.files.DownloadLink(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "File not found")
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "download link failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to build link")
		return
	}
	writeJSON(w, http.StatusOK, downloadLinkResponse{DownloadLink: link, Message: "success"})
}

func (s *Server) handleSecureDownload(w http.ResponseWriter, r *http.Request) {
	f, body, err := s.files.Open(r.Context(), mux.Vars(r)["token"])
	if errors.Is(err, token.ErrNotFound) || errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Invalid or expired link")
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "open download failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to open file")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	if f.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.log.Warn(r.Context(), "download interrupted", "file_id", f.ID, "error", err)
	}
}
