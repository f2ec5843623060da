package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/apperr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
)

const maxCatalogSize = 32 << 20 // 32 MB

var catalogMIMETypes = map[string]bool{
	"application/json": true,
	"text/json":        true,
	"":                 true,
}

func (s *Server) importCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("catalog")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	if strings.HasPrefix(raw, "data:") {
		data, err = decodeDataURI(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else {
		data = []byte(raw)
	}

	if len(data) > maxCatalogSize {
		return mcp.NewToolResultError(fmt.Sprintf("catalog too large: %d bytes (max %d)", len(data), maxCatalogSize)), nil
	}
	if !json.Valid(data) {
		return mcp.NewToolResultError("catalog is not valid JSON"), nil
	}

	pre := catalogservice.Precondition{IfNoneMatch: "*"}
	if req.GetBool("overwrite", false) {
		pre.IfNoneMatch = ""
	}

	res, err := s.svc.ImportCatalog(ctx, modelID, data, pre)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("catalog already exists: %s (set overwrite to replace it)", modelID)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch {
	case res.Created:
		s.publish("created", modelID)
	case res.Changed:
		s.publish("updated", modelID)
	}

	return jsonResult(res)
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI carrying a
// JSON document.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if !catalogMIMETypes[mime] {
		return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}
