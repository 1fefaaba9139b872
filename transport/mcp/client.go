package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/chessmatch/game/registry"
)

// Client is a thin MCP client that proxies to the REST admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Chess Session Broker",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Chess Session Broker - MCP Interface

This is a thin client that proxies all requests to the REST admin API.

The broker pairs two chess clients into a room under a 16-bit join code and
relays their moves while enforcing turn alternation. Gameplay happens over
the WebSocket endpoint; this interface only inspects the broker.

AVAILABLE TOOLS:
- server_info: Current room/participant counts
- list_rooms: List all active rooms
- room_state: Inspect one room by its join code`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_info",
		Description: "Get current room and participant counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerInfo)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all active rooms",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of rooms to return",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "room_state",
		Description: "Inspect one room: occupants, turn holder, and lifecycle timestamps",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "integer",
					"description": "The room's join code (0-65535)",
				},
			},
			Required: []string{"code"},
		},
	}, c.handleRoomState)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall performs one GET against the admin API and decodes the result.
func (c *Client) apiCall(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// Tool handlers

func (c *Client) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats registry.Stats
	if err := c.apiCall("/api/stats", &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Active rooms: %d\nConnected participants: %d\nPaired rooms: %d\n",
		stats.Rooms, stats.Participants, stats.Paired)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/rooms"
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if limit, ok := args["limit"].(float64); ok && limit > 0 {
			path = fmt.Sprintf("%s?limit=%d", path, int(limit))
		}
	}

	var response struct {
		Count int                 `json:"count"`
		Rooms []registry.RoomInfo `json:"rooms"`
	}
	if err := c.apiCall(path, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Active Rooms (%d):\n\n", response.Count)
	for _, r := range response.Rooms {
		result += fmt.Sprintf("- %d (occupants: %d, full: %t, created: %s)\n",
			r.Code, len(r.Occupants), r.Full, r.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleRoomState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("missing arguments"), nil
	}
	code, ok := args["code"].(float64)
	if !ok {
		return mcp.NewToolResultError("code is required"), nil
	}

	var info registry.RoomInfo
	if err := c.apiCall(fmt.Sprintf("/api/rooms/%d", int(code)), &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := formatRoomInfo(&info)
	return mcp.NewToolResultText(result), nil
}

// formatRoomInfo renders a room snapshot for tool output.
func formatRoomInfo(info *registry.RoomInfo) string {
	result := fmt.Sprintf("Room %d\n", info.Code)
	for i, occ := range info.Occupants {
		slot := "A"
		if i == 1 {
			slot = "B"
		}
		name := occ.Name
		if name == "" {
			name = "(unnamed)"
		}
		marker := ""
		if occ.ID == info.Turn {
			marker = " <- turn"
		}
		result += fmt.Sprintf("  Slot %s: %s %s%s\n", slot, occ.ID, name, marker)
	}
	result += fmt.Sprintf("  Full: %t\n", info.Full)
	result += fmt.Sprintf("  Finished: %t\n", info.Finished)
	result += fmt.Sprintf("  Created: %s\n", info.CreatedAt.Format(time.RFC3339))
	result += fmt.Sprintf("  Last active: %s\n", info.LastActive.Format(time.RFC3339))
	return result
}
