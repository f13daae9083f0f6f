package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Connection is one live MCP client session bound to a remote search
// backend. It adapts the session's CallTool into the CallFunc shape the
// dispatcher consumes.
type Connection struct {
	session *mcp.ClientSession
}

// Connect dials a remote MCP server over the streamable HTTP transport.
func Connect(ctx context.Context, endpoint string) (*Connection, error) {
	transport := &mcp.StreamableClientTransport{Endpoint: endpoint}
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "unisearch",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect %q: %w", endpoint, err)
	}
	return &Connection{session: session}, nil
}

// Close terminates the session.
func (c *Connection) Close() error {
	return c.session.Close()
}

// CallFunc returns the (method, arguments) -> dict shape the dispatcher
// binds sources to. The tool result's first text content is decoded as a
// JSON object; non-JSON text is wrapped in an {"output": ...} envelope so
// the response parser can take one more pass at it.
func (c *Connection) CallFunc() CallFunc {
	return func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
			Name:      method,
			Arguments: args,
		})
		if err != nil {
			return nil, fmt.Errorf("mcp call %q: %w", method, err)
		}

		text := firstTextContent(result)
		if text == "" {
			if result.IsError {
				return nil, fmt.Errorf("mcp call %q: backend returned an error with no content", method)
			}
			return map[string]interface{}{"success": true}, nil
		}
		if result.IsError {
			return nil, fmt.Errorf("mcp call %q: %s", method, text)
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return map[string]interface{}{"output": text}, nil
		}
		return decoded, nil
	}
}

func firstTextContent(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
