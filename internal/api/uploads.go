package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

const (
	uploadField = "file"
	// multipartSlack covers boundaries and part headers around the file.
	multipartSlack = 64 << 10
)

// filePart streams the multipart body up to the "file" field. The caller
// must read the returned part before touching the request again.
func (h *APIHandler) filePart(w http.ResponseWriter, r *http.Request) (*multipart.Part, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, core.Validation("Expected a multipart/form-data body")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, core.Validation("No file uploaded")
		}
		if err != nil {
			return nil, core.Validation("Malformed multipart body")
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	part, err := h.filePart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer part.Close()

	up, err := h.uploads.Save(r.Context(), part, part.FileName())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"url":          up.URL,
		"filename":     up.Filename,
		"originalName": up.OriginalName,
		"mimeType":     up.MimeType,
		"size":         up.Size,
	})
}

func (h *APIHandler) AvatarHandler(w http.ResponseWriter, r *http.Request) {
	part, err := h.filePart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer part.Close()

	user, up, err := h.uploads.SaveAvatar(r.Context(), callerID(r), part, part.FileName())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user, "url": up.URL})
}
