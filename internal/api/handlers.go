package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/checksum"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

const maxBodyBytes = 32 << 20

// EventPublisher receives catalog changes made through the API.
type EventPublisher interface {
	PublishCatalogEvent(kind, modelID string)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *catalogservice.Service
	events EventPublisher
}

// NewHandler creates a new Handler. events may be nil.
func NewHandler(svc *catalogservice.Service, events EventPublisher) *Handler {
	return &Handler{svc: svc, events: events}
}

func (h *Handler) publish(kind, modelID string) {
	if h.events != nil {
		h.events.PublishCatalogEvent(kind, modelID)
	}
}

func modelID(r *http.Request) string {
	return chi.URLParam(r, "modelID")
}

// ListModels handles GET /api/models.
//
//	@Summary		List cached models
//	@Tags			models
//	@Produce		json
//	@Success		200	{object}	ModelListResponse
//	@Security		BearerAuth
//	@Router			/models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelListResponse{Models: h.svc.Models(r.Context())})
}

// GetModel handles GET /api/models/{modelID}.
//
//	@Summary		Describe one cached model
//	@Tags			models
//	@Produce		json
//	@Param			modelID	path		string	true	"Model URN"
//	@Success		200		{object}	ModelDetailResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID} [get]
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(modelID(r))
	if err != nil {
		writeError(w, "get model", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(snap.Checksum))
	writeJSON(w, http.StatusOK, ModelDetailResponse{
		ModelSummary:   snap.Summary(),
		Skipped:        snap.Schema.Skipped(),
		Duplicates:     snap.Schema.Duplicates(),
		MalformedUUIDs: snap.Schema.MalformedUUIDs(),
	})
}

// GetCatalog handles GET /api/models/{modelID}/catalog.
//
//	@Summary		Download the stored raw catalog
//	@Tags			catalogs
//	@Produce		json
//	@Param			modelID	path	string	true	"Model URN"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/catalog [get]
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	data, sum, err := h.svc.CatalogData(r.Context(), modelID(r))
	if err != nil {
		writeError(w, "get catalog", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", checksum.ETag(sum))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PutCatalog handles PUT /api/models/{modelID}/catalog.
//
//	@Summary		Store a raw catalog
//	@Description	The catalog is validated by building a schema snapshot before it is stored.
//	@Tags			catalogs
//	@Accept			json
//	@Produce		json
//	@Param			modelID			path		string	true	"Model URN"
//	@Param			If-Match		header		string	false	"Checksum of the stored catalog"
//	@Param			If-None-Match	header		string	false	"* to refuse overwriting"
//	@Success		200				{object}	ImportResponse
//	@Success		201				{object}	ImportResponse
//	@Failure		400				{object}	errResponse
//	@Failure		412				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/catalog [put]
func (h *Handler) PutCatalog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("catalog is required"))
		return
	}

	id := modelID(r)
	res, err := h.svc.ImportCatalog(r.Context(), id, rawCatalog(body), catalogservice.Precondition{
		IfMatch:     r.Header.Get("If-Match"),
		IfNoneMatch: strings.TrimSpace(r.Header.Get("If-None-Match")),
	})
	if err != nil {
		writeError(w, "import catalog", err)
		return
	}
	h.publishImport(id, res)

	w.Header().Set("ETag", checksum.ETag(res.Summary.Checksum))
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *Handler) publishImport(id string, res *catalogservice.ImportResult) {
	switch {
	case res.Created:
		h.publish("created", id)
	case res.Changed:
		h.publish("updated", id)
	}
}

// DeleteCatalog handles DELETE /api/models/{modelID}/catalog.
//
//	@Summary		Delete a stored catalog
//	@Tags			catalogs
//	@Param			modelID	path	string	true	"Model URN"
//	@Success		204		"Catalog deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/catalog [delete]
func (h *Handler) DeleteCatalog(w http.ResponseWriter, r *http.Request) {
	id := modelID(r)
	if err := h.svc.DeleteCatalog(r.Context(), id); err != nil {
		writeError(w, "delete catalog", err)
		return
	}
	h.publish("deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListAttributes handles GET /api/models/{modelID}/attributes.
//
//	@Summary		List or look up attributes
//	@Description	Without parameters every attribute is returned. category and name select one attribute, hash selects by identity hash.
//	@Tags			attributes
//	@Produce		json
//	@Param			modelID		path		string	true	"Model URN"
//	@Param			category	query		string	false	"Attribute category"
//	@Param			name		query		string	false	"Attribute name"
//	@Param			hash		query		string	false	"Identity hash"
//	@Success		200			{object}	AttributeListResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/attributes [get]
func (h *Handler) ListAttributes(w http.ResponseWriter, r *http.Request) {
	id := modelID(r)
	q := r.URL.Query()

	var (
		defs []*attr.Definition
		err  error
	)
	switch {
	case q.Get("hash") != "":
		var d *attr.Definition
		if d, err = h.svc.FindAttributeByHash(id, q.Get("hash")); err == nil {
			defs = []*attr.Definition{d}
		}
	case q.Has("category") || q.Has("name"):
		var d *attr.Definition
		if d, err = h.svc.FindAttribute(id, q.Get("category"), q.Get("name")); err == nil {
			defs = []*attr.Definition{d}
		}
	default:
		defs, err = h.svc.Attributes(id)
	}
	if err != nil {
		writeError(w, "list attributes", err)
		return
	}
	writeJSON(w, http.StatusOK, AttributeListResponse{Attributes: infos(defs)})
}

// GetAttribute handles GET /api/models/{modelID}/attributes/{id}.
//
//	@Summary		Get an attribute by id or qualified column
//	@Tags			attributes
//	@Produce		json
//	@Param			modelID	path		string	true	"Model URN"
//	@Param			id		path		string	true	"Attribute id"
//	@Success		200		{object}	attr.Info
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/attributes/{id} [get]
func (h *Handler) GetAttribute(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.FindAttributeByID(modelID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get attribute", err)
		return
	}
	writeJSON(w, http.StatusOK, d.Info())
}

// Applicable handles GET /api/models/{modelID}/applicable.
//
//	@Summary		Native parameters that auto-apply to a classification
//	@Tags			attributes
//	@Produce		json
//	@Param			modelID			path		string	true	"Model URN"
//	@Param			classification	query		string	true	"Classification code"
//	@Success		200				{object}	AttributeListResponse
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/applicable [get]
func (h *Handler) Applicable(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("classification")
	if class == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'classification' is required"))
		return
	}
	defs, err := h.svc.Applicable(modelID(r), class)
	if err != nil {
		writeError(w, "applicable attributes", err)
		return
	}
	writeJSON(w, http.StatusOK, AttributeListResponse{Attributes: infos(defs)})
}

// FormatRows handles POST /api/models/{modelID}/rows/format.
//
//	@Summary		Resolve a raw scan response into named properties
//	@Tags			rows
//	@Accept			json
//	@Produce		json
//	@Param			modelID	path		string	true	"Model URN"
//	@Param			exclude	query		string	false	"Comma separated column families to drop"
//	@Success		200		{object}	FormatRowsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/rows/format [post]
func (h *Handler) FormatRows(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	var exclude []dtschema.ColumnFamily
	if v := r.URL.Query().Get("exclude"); v != "" {
		for _, f := range strings.Split(v, ",") {
			exclude = append(exclude, dtschema.ColumnFamily(strings.TrimSpace(f)))
		}
	}
	out, err := h.svc.FormatRows(r.Context(), modelID(r), body, exclude)
	if err != nil {
		writeError(w, "format rows", err)
		return
	}
	writeJSON(w, http.StatusOK, FormatRowsResponse{Elements: out})
}

// MatchHash handles GET /api/hashes.
//
//	@Summary		Find the attribute with an identity hash in every model
//	@Tags			attributes
//	@Produce		json
//	@Param			hash	query		string	true	"Identity hash"
//	@Success		200		{object}	HashMatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/hashes [get]
func (h *Handler) MatchHash(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'hash' is required"))
		return
	}
	matches, err := h.svc.MatchHash(r.Context(), hash)
	if err != nil {
		writeError(w, "match hash", err)
		return
	}
	writeJSON(w, http.StatusOK, HashMatchResponse{Hash: hash, Matches: nonNil(matches)})
}

// MatchName handles GET /api/names.
//
//	@Summary		Find attributes with a category and name in every model
//	@Tags			attributes
//	@Produce		json
//	@Param			category	query		string	false	"Attribute category"
//	@Param			name		query		string	true	"Attribute name"
//	@Success		200			{object}	NameMatchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/names [get]
func (h *Handler) MatchName(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, name := q.Get("category"), q.Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	matches, err := h.svc.MatchName(r.Context(), category, name)
	if err != nil {
		writeError(w, "match name", err)
		return
	}
	writeJSON(w, http.StatusOK, NameMatchResponse{Category: category, Name: name, Matches: nonNil(matches)})
}

// ListIndex handles GET /api/index.
//
//	@Summary		List the catalogs recorded in the attribute index
//	@Tags			catalogs
//	@Produce		json
//	@Success		200	{object}	IndexResponse
//	@Security		BearerAuth
//	@Router			/index [get]
func (h *Handler) ListIndex(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.IndexedCatalogs(r.Context())
	if err != nil {
		writeError(w, "list index", err)
		return
	}
	writeJSON(w, http.StatusOK, IndexResponse{Catalogs: nonNil(entries)})
}

// BuildMutation handles POST /api/models/{modelID}/mutations.
//
//	@Summary		Coerce an input value and build its mutation tuple
//	@Tags			attributes
//	@Accept			json
//	@Produce		json
//	@Param			modelID	path		string			true	"Model URN"
//	@Param			body	body		MutationRequest	true	"Attribute and value"
//	@Success		200		{object}	MutationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{modelID}/mutations [post]
func (h *Handler) BuildMutation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	out, err := h.svc.BuildMutation(r.Context(), modelID(r), req)
	if err != nil {
		writeError(w, "build mutation", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Search handles GET /api/search.
//
//	@Summary		Search attribute names and categories across models
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNil(results)})
}

// QualifyKeys handles POST /api/keys/qualify.
//
//	@Summary		Convert short element keys to qualified keys
//	@Tags			keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QualifyKeysRequest	true	"Short keys"
//	@Success		200		{object}	QualifyKeysResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/keys/qualify [post]
func (h *Handler) QualifyKeys(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req QualifyKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	out, err := catalogservice.QualifyKeys(req.Keys, req.Logical)
	if err != nil {
		writeError(w, "qualify keys", err)
		return
	}
	writeJSON(w, http.StatusOK, QualifyKeysResponse{Keys: out})
}

// DecodeKeys handles POST /api/keys/decode.
//
//	@Summary		Split qualified keys into element flags and short keys
//	@Tags			keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DecodeKeysRequest	true	"Qualified keys"
//	@Success		200		{object}	DecodeKeysResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/keys/decode [post]
func (h *Handler) DecodeKeys(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req DecodeKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	out, err := catalogservice.DecodeKeys(req.Keys)
	if err != nil {
		writeError(w, "decode keys", err)
		return
	}
	writeJSON(w, http.StatusOK, DecodeKeysResponse{Keys: out})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
