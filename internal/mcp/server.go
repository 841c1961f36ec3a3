package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/pkg/version"
)

// Searcher runs searches. *search.Engine implements it.
type Searcher interface {
	SearchText(ctx context.Context, q search.TextQuery) ([]search.ScoredChunk, error)
	SearchVector(ctx context.Context, q search.VectorQuery) ([]search.ScoredChunk, error)
	SearchHybrid(ctx context.Context, q search.HybridQuery) (*search.Response, error)
}

// Catalog exposes store contents. *store.SQLiteStore implements it.
type Catalog interface {
	Stats(ctx context.Context) (*store.Stats, error)
	GetChunk(ctx context.Context, id string) (*store.Chunk, error)
}

// ModelLister lists live vector indexes. *registry.Registry implements it.
type ModelLister interface {
	Models() []registry.Info
}

// ChunkURIPrefix prefixes chunk resource URIs.
const ChunkURIPrefix = "ragsearch://chunks/"

// Server bridges MCP clients and the search engine.
type Server struct {
	mcp     *mcp.Server
	engine  Searcher
	catalog Catalog
	models  ModelLister
	logger  *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{"search_text", "Keyword search over chunk text and descriptions. Supports \"exact phrases\", OR and -exclusions. Scores are in [0,1)."},
	{"search_vector", "Similarity search with a query embedding against one model's index. Scores are cosine similarity."},
	{"search_hybrid", "Ranks chunks by a weighted sum of keyword relevance and vector similarity. Chunks found by only one side still rank."},
	{"stats", "Counts of documents, chunks and embeddings, plus the live vector indexes per model."},
}

// NewServer creates an MCP server over engine. models may be nil.
func NewServer(engine Searcher, catalog Catalog, models ModelLister) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}

	s := &Server{
		engine:  engine,
		catalog: catalog,
		models:  models,
		logger:  slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "ragsearch", Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.searchTextHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.searchVectorHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.searchHybridHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.statsHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "chunk",
		URITemplate: ChunkURIPrefix + "{id}",
		Description: "Full text of one chunk by id",
		MIMEType:    "text/plain",
	}, s.readChunk)
}

func (s *Server) searchTextHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchTextInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	results, err := s.engine.SearchText(ctx, search.TextQuery{
		Query:  in.Query,
		Source: in.Source,
		Limit:  in.Limit,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{Results: toResults(results, false)}, nil
}

func (s *Server) searchVectorHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchVectorInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	kind, err := parseKind(in.Kind)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	results, err := s.engine.SearchVector(ctx, search.VectorQuery{
		Vector:      in.Vector,
		Model:       in.Model,
		VectorModel: in.VectorModel,
		Kind:        kind,
		Threshold:   in.Threshold,
		Source:      in.Source,
		Limit:       in.Limit,
		Probe:       in.Probe,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{Results: toResults(results, false)}, nil
}

func (s *Server) searchHybridHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchHybridInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	kind, err := parseKind(in.Kind)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	q := search.HybridQuery{
		Query:       in.Query,
		Vector:      in.Vector,
		Model:       in.Model,
		VectorModel: in.VectorModel,
		Kind:        kind,
		Source:      in.Source,
		Limit:       in.Limit,
		Probe:       in.Probe,
		Degraded:    in.AllowDegrade,
	}
	if in.TextWeight != nil || in.VectorWeight != nil {
		if in.TextWeight == nil || in.VectorWeight == nil {
			return nil, SearchOutput{}, NewInvalidParamsError("text_weight and vector_weight must be given together")
		}
		q.Weights = &search.Weights{Text: *in.TextWeight, Vector: *in.VectorWeight}
	}

	resp, err := s.engine.SearchHybrid(ctx, q)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	if resp.Degraded {
		s.logger.Warn("hybrid search degraded", slog.String("reason", resp.Reason))
	}
	return nil, SearchOutput{
		Results:        toResults(resp.Results, true),
		Degraded:       resp.Degraded,
		DegradedReason: resp.Reason,
	}, nil
}

func (s *Server) statsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	st, err := s.catalog.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	out := StatsOutput{Store: st, Indexes: []registry.Info{}}
	if s.models != nil {
		out.Indexes = s.models.Models()
	}
	return nil, out, nil
}

func (s *Server) readChunk(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, ChunkURIPrefix)
	if !ok || id == "" {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid chunk uri: %s", uri))
	}
	c, err := s.catalog.GetChunk(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	text := c.Text
	if c.Description != "" {
		text = c.Description + "\n\n" + c.Text
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}},
	}, nil
}

// Serve runs the server on transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func parseKind(s string) (store.Kind, error) {
	if s == "" {
		return store.KindBody, nil
	}
	k, err := store.ParseKind(s)
	if err != nil {
		return "", NewInvalidParamsError(err.Error())
	}
	return k, nil
}
