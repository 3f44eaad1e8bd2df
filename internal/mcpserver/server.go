// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only mapforge tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mapforge/internal/buildservice"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/overlay"
)

const pipelineFormatURI = "mapforge://pipeline-format"

// Service is the subset of the build service exposed over MCP.
type Service interface {
	Overlays(ctx context.Context) ([]models.Overlay, error)
	Preview(ctx context.Context, t buildservice.Target) ([]models.PlanPreview, error)
	Fingerprints(ctx context.Context) ([]models.Fingerprint, error)
	LastRun() (*models.RunReport, bool)
}

// Server wraps the MCP server with mapforge tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
	// defaults fills in project and region when a call omits them.
	defaults buildservice.Target
}

// New creates a new MCP server with all tools registered.
func New(svc Service, defaults buildservice.Target, version string) *Server {
	s := &Server{svc: svc, defaults: defaults}

	s.mcp = server.NewMCPServer(
		"mapforge",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_overlays",
		mcp.WithDescription("List the overlays declared by the pipeline file with their command kind."),
	), s.listOverlays)

	s.mcp.AddTool(mcp.NewTool("plan_overlay",
		mcp.WithDescription("Show the commands that would build the given overlays and whether each "+
			"would run or be skipped as up to date. Nothing is executed."),
		mcp.WithString("project", mcp.Description("Project name (defaults to the configured project)")),
		mcp.WithString("region", mcp.Description("Region name (defaults to the configured region)")),
		mcp.WithString("overlays", mcp.Description("Comma-separated overlay ids; empty for the default build order")),
		mcp.WithBoolean("preview", mcp.Description("Plan the reduced-size preview build")),
	), s.planOverlay)

	s.mcp.AddTool(mcp.NewTool("list_fingerprints",
		mcp.WithDescription("List the stored command fingerprints, one per build target."),
	), s.listFingerprints)

	s.mcp.AddTool(mcp.NewTool("get_last_run",
		mcp.WithDescription("Return the report of the most recent build in this process."),
	), s.getLastRun)

	s.mcp.AddResource(
		mcp.NewResource(pipelineFormatURI, "Pipeline Format",
			mcp.WithResourceDescription("Keys read from the pipeline file and the rebuild rule."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPipelineFormat,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listOverlays(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	overlays, err := s.svc.Overlays(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(overlays)
}

func (s *Server) planOverlay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t := s.defaults
	t.Force = false
	if v, err := req.RequireString("project"); err == nil && v != "" {
		t.Project = v
	}
	if v, err := req.RequireString("region"); err == nil && v != "" {
		t.Region = v
	}
	if v, err := req.RequireString("overlays"); err == nil && v != "" {
		t.Overlays = overlay.SplitList(v)
	}
	if v, err := req.RequireBool("preview"); err == nil {
		t.Preview = v
	}

	plans, err := s.svc.Preview(ctx, t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(plans)
}

func (s *Server) listFingerprints(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fps, err := s.svc.Fingerprints(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(fps) == 0 {
		return mcp.NewToolResultText("no fingerprints recorded"), nil
	}
	return jsonResult(fps)
}

func (s *Server) getLastRun(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, ok := s.svc.LastRun()
	if !ok {
		return mcp.NewToolResultText("no build has run in this process"), nil
	}
	return jsonResult(rep)
}

func (s *Server) readPipelineFormat(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      pipelineFormatURI,
			MIMEType: "text/markdown",
			Text:     PipelineFormat,
		},
	}, nil
}
