package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadCatalog handles POST /api/catalogs (multipart/form-data, field
// "file"). The file name must be <modelID>.json.
//
//	@Summary		Upload a catalog file
//	@Tags			catalogs
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Catalog named <modelID>.json"
//	@Success		200		{object}	UploadResponse
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalogs [post]
func (h *Handler) UploadCatalog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	// The multipart reader already strips directories; anything that is
	// not a plain catalog file name is rejected.
	if filepath.Base(header.Filename) != header.Filename {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename: "+header.Filename))
		return
	}
	id, ok := storage.ModelIDFromFile(header.Filename)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("filename must be <modelID>.json"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	res, err := h.svc.ImportCatalog(r.Context(), id, data, catalogservice.Precondition{})
	if err != nil {
		writeError(w, "upload catalog", err)
		return
	}
	h.publishImport(id, res)

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, UploadResponse{
		Filename:     header.Filename,
		Size:         int64(len(data)),
		ImportResult: *res,
	})
}
