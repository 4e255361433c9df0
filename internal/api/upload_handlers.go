package api

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form up to 10MB")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "file is required")
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds 10MB")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		buf := make([]byte, 512)
		n, _ := file.Read(buf)
		contentType = http.DetectContentType(buf[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to read upload")
			return
		}
	}

	objectPath := uploadPath(r.FormValue("folder"), header.Filename)

	url, err := s.uploader.Upload(r.Context(), s.bucket, objectPath, contentType, file)
	if err != nil {
		slog.Error("failed to upload file", "path", objectPath, "error", err)
		respondError(w, http.StatusBadGateway, "upload_failed", "failed to store file")
		return
	}

	slog.Info("file uploaded", "bucket", s.bucket, "path", objectPath, "size", header.Size)

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"url":          url,
		"path":         objectPath,
		"content_type": contentType,
		"size":         header.Size,
	})
}

// uploadPath builds folder/<uuid><ext>. The folder is reduced to safe path segments.
func uploadPath(folder, filename string) string {
	var segments []string
	for _, seg := range strings.Split(folder, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, seg)
	}

	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 {
		ext = ""
	}
	segments = append(segments, uuid.New().String()+ext)

	return strings.Join(segments, "/")
}
