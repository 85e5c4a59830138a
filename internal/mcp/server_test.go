package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clockwerk-io/clockwerk/internal/backup"
	"github.com/clockwerk-io/clockwerk/internal/store"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func setupTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{
		DBPath:          filepath.Join(dir, "clockwerk.db"),
		BackupDir:       filepath.Join(dir, "backups"),
		LegacyDBPath:    filepath.Join(dir, "legacy.db"),
		LegacyBackupDir: filepath.Join(dir, "legacy-backups"),
	})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	backupDir := filepath.Join(dir, "backups")
	return NewServer(ServerConfig{
		Store:    st,
		Manager:  backup.NewManager(st, backupDir),
		Restorer: backup.NewRestorer(st, backupDir),
		Version:  "test",
	})
}

// callTool invokes an MCP tool through the server's JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.HandleMessage(context.Background(), raw)

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	out := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			out.Content = append(out.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return out
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestNewServer(t *testing.T) {
	if srv := setupTestServer(t); srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestBackupCreateAndListTools(t *testing.T) {
	srv := setupTestServer(t)

	result := callTool(t, srv, "backup_create", map[string]interface{}{
		"name": "via-mcp.db",
	})
	if result.IsError {
		t.Fatalf("backup_create failed: %s", getTextContent(t, result))
	}

	var snap backup.Snapshot
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.FileName != "via-mcp.db" {
		t.Errorf("expected via-mcp.db, got %q", snap.FileName)
	}

	result = callTool(t, srv, "backup_list", nil)
	if result.IsError {
		t.Fatalf("backup_list failed: %s", getTextContent(t, result))
	}
	if !strings.Contains(getTextContent(t, result), "via-mcp.db") {
		t.Errorf("listing missing created backup: %s", getTextContent(t, result))
	}
}

func TestBackupDeleteToolNotFound(t *testing.T) {
	srv := setupTestServer(t)

	result := callTool(t, srv, "backup_delete", map[string]interface{}{
		"name": "nope.db",
	})
	if !result.IsError {
		t.Fatal("expected error result for missing backup")
	}
	if !strings.Contains(getTextContent(t, result), "not found") {
		t.Errorf("expected not-found message, got %s", getTextContent(t, result))
	}
}

func TestBackupRestoreToolValidation(t *testing.T) {
	srv := setupTestServer(t)

	result := callTool(t, srv, "backup_restore", map[string]interface{}{
		"name": "../../etc/passwd.db",
	})
	if !result.IsError {
		t.Fatal("expected error result for traversal name")
	}
	if !strings.Contains(getTextContent(t, result), "invalid name") {
		t.Errorf("expected validation message, got %s", getTextContent(t, result))
	}
}

func TestStatsTool(t *testing.T) {
	srv := setupTestServer(t)

	result := callTool(t, srv, "store_stats", nil)
	if result.IsError {
		t.Fatalf("store_stats failed: %s", getTextContent(t, result))
	}

	var stats store.Stats
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TaskCount != 0 {
		t.Errorf("expected empty store, got %d tasks", stats.TaskCount)
	}
}
