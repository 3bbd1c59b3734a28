package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vaultmcp/vaultmcp/internal/config"
	"github.com/vaultmcp/vaultmcp/internal/index"
	"github.com/vaultmcp/vaultmcp/internal/search"
	"github.com/vaultmcp/vaultmcp/internal/store"
	"github.com/vaultmcp/vaultmcp/pkg/version"
)

// defaultSearchLimit is the result count when a client omits limit.
const defaultSearchLimit = 5

// maxSearchLimit caps client-requested result counts.
const maxSearchLimit = 50

// Server bridges MCP clients to the vault search engine and reconciler.
type Server struct {
	mcp        *mcp.Server
	engine     *search.Engine
	reconciler *index.Reconciler
	store      *store.VaultStore
	config     *config.Config
	logger     *slog.Logger
}

// SearchNotesInput is the search_notes tool input.
type SearchNotesInput struct {
	Query    string `json:"query" jsonschema:"natural language search query"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum results to return, default 5"`
	FileType string `json:"file_type,omitempty" jsonschema:"filter by file type, e.g. markdown, text, json"`
}

// IndexNotesInput is the index_notes tool input.
type IndexNotesInput struct {
	VaultPath string `json:"vault_path,omitempty" jsonschema:"vault folder to index, defaults to the configured vault"`
	Force     bool   `json:"force,omitempty" jsonschema:"re-index every file regardless of modification time"`
}

// IndexStatsInput is the get_index_stats tool input (no parameters).
type IndexStatsInput struct{}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine *search.Engine, reconciler *index.Reconciler, st *store.VaultStore, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if cfg == nil {
		cfg = config.New()
	}

	s := &Server{
		engine:     engine,
		reconciler: reconciler,
		store:      st,
		config:     cfg,
		logger:     slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "vaultmcp",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_notes",
		Description: "Search your notes by meaning, not keywords. Returns the most relevant passages with their file and section so you can cite where information lives.",
	}, s.searchNotesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_notes",
		Description: "Index or re-index the notes vault. Run after adding or editing notes; only changed files are re-processed unless force is set.",
	}, s.indexNotesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_index_stats",
		Description: "Report how many chunks and files are indexed, broken down by file type.",
	}, s.indexStatsHandler)

	s.logger.Info("mcp_tools_registered", slog.Int("count", 3))
}

func (s *Server) searchNotesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchNotesInput) (
	*mcp.CallToolResult, any, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	// An empty query is legal; it embeds like any other and finds
	// nothing when the store is empty.
	if input.Limit < 0 {
		return nil, nil, NewInvalidParamsError("limit must not be negative")
	}
	limit := input.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit),
		slog.String("file_type", input.FileType))

	results, err := s.engine.Search(ctx, input.Query, search.Options{
		Limit:    limit,
		FileType: input.FileType,
	})
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Int("result_count", len(results)),
		slog.Duration("duration", time.Since(start)))
	return textResult(FormatSearchResults(input.Query, results)), nil, nil
}

func (s *Server) indexNotesHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexNotesInput) (
	*mcp.CallToolResult, any, error,
) {
	requestID := generateRequestID()
	vaultPath := input.VaultPath
	if vaultPath == "" {
		vaultPath = s.config.Vault.Path
	}

	s.logger.Info("index_requested",
		slog.String("request_id", requestID),
		slog.String("vault", vaultPath),
		slog.Bool("force", input.Force))

	result, err := s.reconciler.Reconcile(ctx, vaultPath, input.Force)
	if err != nil {
		s.logger.Error("index_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}
	return textResult(FormatIndexResult(result)), nil, nil
}

func (s *Server) indexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult, any, error,
) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return textResult(FormatStats(stats)), nil, nil
}

// Serve runs the MCP server until the context ends.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("version", version.Version))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
