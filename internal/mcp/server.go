// Package mcp provides a Model Context Protocol server for Clockwerk's
// datastore administration surface.
//
// It exposes backup lifecycle operations (create, list, delete, restore)
// and store statistics as MCP tools over stdio, so operator tooling can
// drive the same function-call interface the HTTP API consumes.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/clockwerk-io/clockwerk/internal/backup"
	"github.com/clockwerk-io/clockwerk/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    *store.Store
	Manager  *backup.Manager
	Restorer *backup.Restorer
	Version  string
}

// dbMu serializes tool calls that touch the database. The mcp-go library
// dispatches handlers concurrently via goroutines, and a restore must never
// interleave with a backup of the same store.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Clockwerk admin tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Clockwerk",
		ver,
		server.WithToolCapabilities(false),
	)

	registerBackupCreateTool(s, cfg.Manager)
	registerBackupListTool(s, cfg.Manager)
	registerBackupDeleteTool(s, cfg.Manager)
	registerBackupRestoreTool(s, cfg.Restorer)
	registerStatsTool(s, cfg.Store)

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// toolError maps the backup error taxonomy onto tool results the same way
// the HTTP layer maps it onto status codes.
func toolError(err error) *mcp.CallToolResult {
	var restoreErr *backup.RestoreError
	switch {
	case errors.Is(err, backup.ErrValidation):
		return mcp.NewToolResultError(fmt.Sprintf("invalid name: %v", err))
	case errors.Is(err, backup.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	case errors.Is(err, backup.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("conflict: %v", err))
	case errors.As(err, &restoreErr):
		return mcp.NewToolResultError(fmt.Sprintf("restore failed, live store unchanged: %v", err))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func registerBackupCreateTool(s *server.MCPServer, manager *backup.Manager) {
	tool := mcp.NewTool("backup_create",
		mcp.WithDescription("Create a point-in-time backup of the live store. Omit name to generate a timestamped one."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("name",
			mcp.Description("Backup file name (alphanumeric, dot, dash, underscore, .db extension). Empty = generated."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		name := ""
		if n, err := req.RequireString("name"); err == nil {
			name = n
		}

		snap, err := manager.Create(ctx, name)
		if err != nil {
			return toolError(err), nil
		}

		data, _ := json.MarshalIndent(snap, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerBackupListTool(s *server.MCPServer, manager *backup.Manager) {
	tool := mcp.NewTool("backup_list",
		mcp.WithDescription("List all backups of the live store, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		snapshots, err := manager.List(ctx)
		if err != nil {
			return toolError(err), nil
		}
		if snapshots == nil {
			snapshots = []backup.Snapshot{}
		}

		data, _ := json.MarshalIndent(snapshots, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerBackupDeleteTool(s *server.MCPServer, manager *backup.Manager) {
	tool := mcp.NewTool("backup_delete",
		mcp.WithDescription("Delete a backup file by name."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Backup file name to delete"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError("name is required"), nil
		}

		if err := manager.Delete(ctx, name); err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("deleted %s", name)), nil
	})
}

func registerBackupRestoreTool(s *server.MCPServer, restorer *backup.Restorer) {
	tool := mcp.NewTool("backup_restore",
		mcp.WithDescription("Replace the live store's contents with a chosen backup. Atomic: the store is either fully restored or unchanged."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Backup file name to restore from"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError("name is required"), nil
		}

		if err := restorer.Restore(ctx, name); err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("restored from %s", name)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st *store.Store) {
	tool := mcp.NewTool("store_stats",
		mcp.WithDescription("Show row counts and on-disk size of the live store."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}
