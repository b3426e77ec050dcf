// Package mcptools exposes the pipeline as Model Context Protocol tools over
// stdio or streamable HTTP.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the pipeline tools registered.
func NewServer(svc *PipelineService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "scamshield",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_intake",
		Description: "Record a scam report and research it into an unverified fact sheet. Returns the new session id.",
	}, svc.StartIntake)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "verify",
		Description: "Verify the session's fact sheet as an officer, optionally applying corrections first. Script generation is blocked until this succeeds.",
	}, svc.Verify)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_stage",
		Description: "Run one pipeline stage for a session. Stages must run in graph order; inputs come from earlier stage outputs.",
	}, svc.RunStage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_state",
		Description: "Return the stage table and full state of a session.",
	}, svc.GetState)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_from",
		Description: "Rerun a session from a stage or a visual checkpoint, reusing every earlier output.",
	}, svc.ResumeFrom)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_scam_report",
		Description: "Build the publishable scam report from the verified fact sheet.",
	}, svc.CreateScamReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_refine",
		Description: "Discuss the unverified fact sheet. Replies follow the officer's language; agreed edits become a new fact sheet revision.",
	}, svc.ChatRefine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refine",
		Description: "Revise the committed script or one section of the social strategy from officer feedback.",
	}, svc.Refine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_full",
		Description: "Run script through package assembly, then visual assets and social strategy in parallel. Returns the video package.",
	}, svc.RunFull)

	return server
}

// RunStdio runs server on the stdio transport, blocking until stdin is
// closed or ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
