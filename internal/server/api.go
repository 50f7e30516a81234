package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	pathpkg "path"
	"strconv"

	"github.com/conneroisu/litterbox/internal/errors"
	"github.com/conneroisu/litterbox/internal/vfs"
)

// maxUploadSize bounds PUT bodies on the filesystem API.
const maxUploadSize = 10 << 20

const (
	codeBodyTooLarge   errors.Code = "body_too_large"
	codeBodyUnreadable errors.Code = "body_unreadable"
)

type apiError struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

type entryResponse struct {
	Name string       `json:"name"`
	Type vfs.FileType `json:"type"`
}

func fsPath(r *http.Request) (string, error) {
	return vfs.Clean("/" + r.PathValue("path"))
}

func queryBool(r *http.Request, key string, fallback bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// handleFSRead serves stat (?stat=1), listing (?list=1) or file content.
// A directory without either flag is listed.
func (s *PreviewServer) handleFSRead(w http.ResponseWriter, r *http.Request) {
	path, err := fsPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fs := s.workspace.FS()

	md, err := fs.Stat(path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch {
	case queryBool(r, "stat", false):
		s.writeJSON(w, http.StatusOK, md)
	case queryBool(r, "list", false) || md.IsDir():
		entries, err := fs.ReadDirectory(path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp := make([]entryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, entryResponse{Name: e.Name, Type: e.Type})
		}
		s.writeJSON(w, http.StatusOK, resp)
	default:
		data, err := fs.ReadFile(path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		contentType := mime.TypeByExtension(pathpkg.Ext(path))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Last-Modified", md.ModTime().UTC().Format(http.TimeFormat))
		_, _ = w.Write(data)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err == nil {
		return data, nil
	}

	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return nil, errors.NewValidationError(codeBodyTooLarge,
			"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
	}

	return nil, errors.NewValidationError(codeBodyUnreadable, "reading request body: "+err.Error())
}

// handleFSWrite writes the request body. create and overwrite default to true.
func (s *PreviewServer) handleFSWrite(w http.ResponseWriter, r *http.Request) {
	path, err := fsPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := vfs.WriteOptions{
		Create:    queryBool(r, "create", true),
		Overwrite: queryBool(r, "overwrite", true),
	}
	if err := s.workspace.FS().WriteFile(path, data, opts); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *PreviewServer) handleFSDelete(w http.ResponseWriter, r *http.Request) {
	path, err := fsPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := vfs.DeleteOptions{Recursive: queryBool(r, "recursive", false)}
	if err := s.workspace.FS().Delete(path, opts); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleFSOp runs op=mkdir or op=rename&to=...
func (s *PreviewServer) handleFSOp(w http.ResponseWriter, r *http.Request) {
	path, err := fsPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fs := s.workspace.FS()

	switch op := r.URL.Query().Get("op"); op {
	case "mkdir":
		if err := fs.CreateDirectory(path); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case "rename":
		to := r.URL.Query().Get("to")
		if to == "" {
			s.writeError(w, r, errors.NewValidationError("missing_target", "rename needs a 'to' path"))
			return
		}
		opts := vfs.RenameOptions{Overwrite: queryBool(r, "overwrite", false)}
		if err := fs.Rename(path, to, opts); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, r, errors.NewValidationError("unknown_operation", "unknown operation: "+op))
	}
}

// statusFor maps a filesystem or validation error to an HTTP status.
func statusFor(err error) int {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Type {
	case errors.ErrorTypeValidation:
		if e.Code == codeBodyTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.ErrorTypeFileSystem:
	default:
		return http.StatusInternalServerError
	}

	switch e.Code {
	case errors.CodeFileNotFound:
		return http.StatusNotFound
	case errors.CodeFileExists:
		return http.StatusConflict
	case errors.CodeFileIsADirectory, errors.CodeFileNotADirectory:
		return http.StatusBadRequest
	case errors.CodeNoPermissions:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *PreviewServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "request failed", "method", r.Method, "path", r.URL.Path)
	}
	s.writeJSON(w, status, apiError{Error: err.Error(), Code: errors.CodeOf(err)})
}

func (s *PreviewServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(context.Background(), err, "encoding response failed")
	}
}
