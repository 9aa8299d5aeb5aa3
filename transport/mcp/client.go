package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/collabboard/board/config"
	"github.com/wricardo/collabboard/board/service"
	"github.com/wricardo/collabboard/board/state"
	"github.com/wricardo/collabboard/transport/piston"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Collaborative Board",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Collaborative Board - MCP Interface

This is a thin client that proxies all requests to the board server's REST API.

A board session holds freehand strokes, text boxes, a zoom level and a shared
code buffer. Participants edit it in real time from the browser; these tools
let you inspect sessions and run code the way the editor's Run button does.

AVAILABLE TOOLS:
- create_session: Create a new board session (optionally with a chosen ID)
- list_sessions: List live sessions with participant counts
- get_session: Get details of a specific session
- session_state: Show the board content of a session
- list_languages: List languages the code editor can run
- execute_code: Run a snippet through the code runner`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	sessionIDProp := map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new board session. A random ID is generated when none is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "ID for the new session (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all live board sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProp},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_state",
		Description: "Show the strokes, text boxes, zoom level and code buffer of a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProp},
			Required:   []string{"session_id"},
		},
	}, c.handleSessionState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "new_textbox_id",
		Description: "Reserve an id for a text box to be added to a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProp},
			Required:   []string{"session_id"},
		},
	}, c.handleNewTextboxID)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_languages",
		Description: "List the languages the shared code editor can run, with runner versions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListLanguages)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "execute_code",
		Description: "Run source code through the code runner and return its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Language name as listed by list_languages",
				},
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Source code to run",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "Runner version (optional, defaults to the catalog version)",
				},
				"stdin": map[string]interface{}{
					"type":        "string",
					"description": "Standard input for the program (optional)",
				},
			},
			Required: []string{"language", "code"},
		},
	}, c.handleExecuteCode)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP call to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"].(string); ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func stringArg(request mcp.CallToolRequest, key string) string {
	v, _ := request.GetArguments()[key].(string)
	return v
}

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{}
	if id := stringArg(request, "session_id"); id != "" {
		body["session_id"] = id
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nBoard URL path: /board/%s\nRealtime endpoint: /realtime/session/%s\n",
		session.ID, session.ID, session.ID)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Live Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		result += fmt.Sprintf("- %s (connections: %d, guests: %d, created: %s)\n",
			s.ID, s.Connections, len(s.Guests), s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request, "session_id")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request, "session_id")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var st state.SessionState
	if err := c.apiCall(ctx, "GET", "/session-state/"+url.PathEscape(sessionID), nil, &st); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionState(sessionID, &st)), nil
}

func (c *Client) handleNewTextboxID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request, "session_id")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+url.PathEscape(sessionID)+"/textbox-id", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Textbox ID: %s\n", response.ID)), nil
}

func (c *Client) handleListLanguages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count     int               `json:"count"`
		Languages []config.Language `json:"languages"`
	}

	if err := c.apiCall(ctx, "GET", "/api/languages", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Languages (%d):\n\n", response.Count)
	for _, lang := range response.Languages {
		label := lang.Label
		if label == "" {
			label = lang.Name
		}
		fmt.Fprintf(&result, "- %s: %s %s\n", lang.Name, label, lang.Version)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := piston.Request{
		Language: stringArg(request, "language"),
		Version:  stringArg(request, "version"),
		Stdin:    stringArg(request, "stdin"),
	}
	code := stringArg(request, "code")
	if req.Language == "" || code == "" {
		return mcp.NewToolResultError("language and code are required"), nil
	}
	req.Files = []piston.File{{Content: code}}

	var output ExecutionOutput
	if err := c.apiCall(ctx, "POST", "/api/execute", req, &output); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatExecution(&output)), nil
}
