// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the attribute catalogs to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
)

// EventPublisher receives catalog changes made through the tools.
type EventPublisher interface {
	PublishCatalogEvent(kind, modelID string)
}

// Server wraps the MCP server with the catalog tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *catalogservice.Service
	events EventPublisher
}

// New creates a new MCP server with all tools registered. events may be nil.
func New(svc *catalogservice.Service, events EventPublisher) *Server {
	s := &Server{svc: svc, events: events}

	s.mcp = server.NewMCPServer(
		"Tandem Attributes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List the models whose attribute catalogs are loaded."),
	), s.listModels)

	s.mcp.AddTool(mcp.NewTool("list_attributes",
		mcp.WithDescription("List every attribute of a model, standard columns included."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Model URN")),
		mcp.WithBoolean("include_hidden", mcp.Description("Include hidden attributes (default false)")),
	), s.listAttributes)

	s.mcp.AddTool(mcp.NewTool("find_attribute",
		mcp.WithDescription("Find an attribute of a model by category and name (case-sensitive)."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Model URN")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Attribute category, e.g. General")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Attribute name, e.g. Serial Number")),
	), s.findAttribute)

	s.mcp.AddTool(mcp.NewTool("get_attribute",
		mcp.WithDescription("Get an attribute of a model by id (e.g. 101, z9) or qualified column (e.g. r:101, n:n)."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Model URN")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Attribute id or qualified column")),
	), s.getAttribute)

	s.mcp.AddTool(mcp.NewTool("search_attributes",
		mcp.WithDescription("Search attribute names and categories across all models."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchAttributes)

	s.mcp.AddTool(mcp.NewTool("match_hash",
		mcp.WithDescription("Find the attribute with the given identity hash in every model. "+
			"Read the tandem://vocabulary resource for the hash formats."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Identity hash, e.g. [General][Serial Number][][]")),
	), s.matchHash)

	s.mcp.AddTool(mcp.NewTool("match_name",
		mcp.WithDescription("Find the attributes with a category and name in every model (case-sensitive)."),
		mcp.WithString("category", mcp.Description("Attribute category, e.g. General")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Attribute name, e.g. Serial Number")),
	), s.matchName)

	s.mcp.AddTool(mcp.NewTool("index_status",
		mcp.WithDescription("List the catalogs recorded in the attribute index and whether each is the one served."),
	), s.indexStatus)

	s.mcp.AddTool(mcp.NewTool("build_mutation",
		mcp.WithDescription("Coerce a value to an attribute's data type and build the [\"i\", family, column, value] "+
			"tuple of a mutate request. Nothing is sent to the model."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Model URN")),
		mcp.WithString("id", mcp.Description("Attribute id or qualified column; alternative to category and name")),
		mcp.WithString("category", mcp.Description("Attribute category")),
		mcp.WithString("name", mcp.Description("Attribute name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Input value as typed by a user; numbers and booleans are accepted too")),
		mcp.WithBoolean("use_default", mcp.Description("Turn unparsable numbers into 0 instead of failing (default false)")),
	), s.buildMutation)

	s.mcp.AddTool(mcp.NewTool("applicable_attributes",
		mcp.WithDescription("List the native parameters of a model that auto-apply to a classification."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Model URN")),
		mcp.WithString("classification", mcp.Required(), mcp.Description("Classification code, e.g. 23.40.20.00")),
	), s.applicableAttributes)

	s.mcp.AddTool(mcp.NewTool("qualify_keys",
		mcp.WithDescription("Convert short element keys from scan results into qualified keys."),
		mcp.WithArray("keys", mcp.Required(), mcp.WithStringItems(), mcp.Description("Short keys (base64)")),
		mcp.WithBoolean("logical", mcp.Description("Mark the elements as logical (types, levels, documents)")),
	), s.qualifyKeys)

	s.mcp.AddTool(mcp.NewTool("decode_keys",
		mcp.WithDescription("Split qualified element keys into element flags and short keys."),
		mcp.WithArray("keys", mcp.Required(), mcp.WithStringItems(), mcp.Description("Qualified keys (URL-safe base64)")),
	), s.decodeKeys)

	s.mcp.AddTool(mcp.NewTool("import_catalog",
		mcp.WithDescription("Store and load the attribute catalog of a model. "+
			"The catalog is a JSON array starting with a \"pdb version dt N\" marker, "+
			"or a data:application/json;base64 URI carrying it."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Model URN")),
		mcp.WithString("catalog", mcp.Required(), mcp.Description("Catalog JSON or data URI")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing catalog (default false)")),
	), s.importCatalog)

	s.mcp.AddTool(mcp.NewTool("get_vocabulary",
		mcp.WithDescription("Returns the column families, data types, flags and hash formats used by the other tools."),
	), s.getVocabulary)

	s.mcp.AddResource(
		mcp.NewResource(VocabularyURI, "Attribute Vocabulary",
			mcp.WithResourceDescription("Column families, data types, flags, identity hashes and element keys."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readVocabularyResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) publish(kind, modelID string) {
	if s.events != nil {
		s.events.PublishCatalogEvent(kind, modelID)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func infos(defs []*attr.Definition, hidden bool) []attr.Info {
	out := make([]attr.Info, 0, len(defs))
	for _, d := range defs {
		if !hidden && d.Hidden() {
			continue
		}
		out = append(out, d.Info())
	}
	return out
}

func (s *Server) listModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models := s.svc.Models(ctx)
	if len(models) == 0 {
		return mcp.NewToolResultText("no models loaded"), nil
	}
	return jsonResult(models)
}

func (s *Server) listAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defs, err := s.svc.Attributes(modelID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(infos(defs, req.GetBool("include_hidden", false)))
}

func (s *Server) findAttribute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.FindAttribute(modelID, category, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("attribute not found: [%s][%s]", category, name)), nil
	}
	return jsonResult(d.Info())
}

func (s *Server) getAttribute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.FindAttributeByID(modelID, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d.Info())
}

func (s *Server) searchAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no attributes found"), nil
	}
	return jsonResult(results)
}

func (s *Server) matchHash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash, err := req.RequireString("hash")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.svc.MatchHash(ctx, hash)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("no models define this attribute"), nil
	}
	return jsonResult(matches)
}

func (s *Server) matchName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.svc.MatchName(ctx, req.GetString("category", ""), name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("no models define this attribute"), nil
	}
	return jsonResult(matches)
}

func (s *Server) indexStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.IndexedCatalogs(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("index is empty"), nil
	}
	return jsonResult(entries)
}

func (s *Server) buildMutation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, ok := req.GetArguments()["value"]
	if !ok {
		return mcp.NewToolResultError("required argument \"value\" not found"), nil
	}
	out, err := s.svc.BuildMutation(ctx, modelID, catalogservice.MutationRequest{
		ID:         req.GetString("id", ""),
		Category:   req.GetString("category", ""),
		Name:       req.GetString("name", ""),
		Value:      value,
		UseDefault: req.GetBool("use_default", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) applicableAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	class, err := req.RequireString("classification")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defs, err := s.svc.Applicable(modelID, class)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(infos(defs, true))
}

func (s *Server) qualifyKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys := req.GetStringSlice("keys", nil)
	if len(keys) == 0 {
		return mcp.NewToolResultError("keys must be a non-empty array of strings"), nil
	}
	out, err := catalogservice.QualifyKeys(keys, req.GetBool("logical", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(out, "\n")), nil
}

func (s *Server) decodeKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys := req.GetStringSlice("keys", nil)
	if len(keys) == 0 {
		return mcp.NewToolResultError("keys must be a non-empty array of strings"), nil
	}
	out, err := catalogservice.DecodeKeys(keys)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) getVocabulary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(Vocabulary), nil
}

func (s *Server) readVocabularyResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      VocabularyURI,
			MIMEType: "text/markdown",
			Text:     Vocabulary,
		},
	}, nil
}
