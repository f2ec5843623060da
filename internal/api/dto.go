package api

import (
	"encoding/json"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/index"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/models"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/rows"
)

// ModelSummary is a cached model (aliased from the domain layer).
type ModelSummary = models.ModelSummary

// ModelListResponse wraps the cached models.
type ModelListResponse struct {
	Models []ModelSummary `json:"models" validate:"required"`
}

// ModelDetailResponse is a model summary with the problems found while
// parsing its catalog.
type ModelDetailResponse struct {
	ModelSummary
	Skipped        []attrschema.Skipped   `json:"skipped"`
	Duplicates     []attrschema.Duplicate `json:"duplicates"`
	MalformedUUIDs []string               `json:"malformed_uuids"`
}

// AttributeListResponse wraps attribute definitions.
type AttributeListResponse struct {
	Attributes []attr.Info `json:"attributes" validate:"required"`
}

// ImportResponse is returned after a catalog was stored.
type ImportResponse = catalogservice.ImportResult

// HashMatchResponse lists every model attribute sharing an identity hash.
type HashMatchResponse struct {
	Hash    string               `json:"hash" example:"[General][Serial Number][][]" validate:"required"`
	Matches []index.AttributeRow `json:"matches" validate:"required"`
}

// NameMatchResponse lists every model attribute with a category and name.
type NameMatchResponse struct {
	Category string               `json:"category" example:"General"`
	Name     string               `json:"name" example:"Serial Number" validate:"required"`
	Matches  []index.AttributeRow `json:"matches" validate:"required"`
}

// IndexResponse lists the catalogs recorded in the attribute index.
type IndexResponse struct {
	Catalogs []catalogservice.IndexEntry `json:"catalogs" validate:"required"`
}

// MutationRequest is the body of POST /models/{modelID}/mutations.
type MutationRequest = catalogservice.MutationRequest

// MutationResponse carries the coerced value and its insert tuple.
type MutationResponse = catalogservice.BuiltMutation

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// QualifyKeysRequest is the body of POST /keys/qualify.
type QualifyKeysRequest struct {
	Keys    []string `json:"keys" example:"AAAAAAAAAAAAAAAAAAAAAAAAAAE=" validate:"required"`
	Logical bool     `json:"logical"`
}

// QualifyKeysResponse carries the qualified keys in request order.
type QualifyKeysResponse struct {
	Keys []string `json:"keys" validate:"required"`
}

// DecodeKeysRequest is the body of POST /keys/decode.
type DecodeKeysRequest struct {
	Keys []string `json:"keys" validate:"required"`
}

// DecodeKeysResponse carries the decoded keys in request order.
type DecodeKeysResponse struct {
	Keys []catalogservice.DecodedKey `json:"keys" validate:"required"`
}

// FormatRowsResponse wraps formatted element properties.
type FormatRowsResponse struct {
	Elements []rows.ElementProps `json:"elements" validate:"required"`
}

// UploadResponse is returned after a multipart catalog upload.
type UploadResponse struct {
	Filename string `json:"filename" example:"urn:adsk.dtm:abc.json" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	catalogservice.ImportResult
}

func infos(defs []*attr.Definition) []attr.Info {
	out := make([]attr.Info, len(defs))
	for i, d := range defs {
		out[i] = d.Info()
	}
	return out
}

// rawCatalog accepts either a bare catalog array or {"catalog": [...]}.
func rawCatalog(body []byte) json.RawMessage {
	var wrapped struct {
		Catalog json.RawMessage `json:"catalog"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped.Catalog) > 0 {
		return wrapped.Catalog
	}
	return body
}
