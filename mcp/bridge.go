package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/akolk/loki-nexus2/logging"
)

const protocolVersion = "2025-06-18"

// Transport selects how a remote toolset is reached.
type Transport string

const (
	TransportEventStream    Transport = "event-stream"    // SSE
	TransportStreamSocket   Transport = "stream-socket"   // stdio subprocess
	TransportStreamableHTTP Transport = "streamable-http" // MCP streamable HTTP
)

// Endpoint describes a remote toolset. For stream-socket, Address is a command
// line: first token the executable, the rest its arguments.
type Endpoint struct {
	Address   string
	Transport Transport
	Headers   map[string]string
}

// Session is an initialized connection to one remote toolset.
type Session interface {
	ListTools(ctx context.Context) ([]mcptypes.Tool, error)
	// CallTool returns the remote result rendered as text.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

type clientSession struct {
	client *client.Client
	cmd    *exec.Cmd // nil for network transports
	log    *logging.Logger
}

// Dial opens and initializes a session. A stream-socket endpoint with an empty
// command line yields (nil, nil): the run proceeds without remote tools.
func Dial(ctx context.Context, ep Endpoint, log *logging.Logger) (Session, error) {
	if log == nil {
		log = logging.Discard()
	}
	log = log.Named("mcp")

	var (
		c   *client.Client
		cmd *exec.Cmd
		err error
	)

	switch ep.Transport {
	case TransportEventStream, "":
		c, err = dialEventStream(ctx, ep)
	case TransportStreamableHTTP:
		c, err = dialStreamableHTTP(ctx, ep)
	case TransportStreamSocket:
		fields := strings.Fields(ep.Address)
		if len(fields) == 0 {
			log.Warn("empty stream-socket command, skipping remote tools")
			return nil, nil
		}
		c, cmd, err = dialStreamSocket(fields)
	default:
		return nil, fmt.Errorf("unknown transport type: %s", ep.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s (%s): %w", ep.Address, ep.Transport, err)
	}

	s, err := newSession(ctx, c, cmd, log)
	if err != nil {
		return nil, err
	}
	log.Info("remote toolset connected", "address", ep.Address, "transport", string(ep.Transport))
	return s, nil
}

// NewSession initializes an already started client, such as an in-process one.
func NewSession(ctx context.Context, c *client.Client, log *logging.Logger) (Session, error) {
	if log == nil {
		log = logging.Discard()
	}
	return newSession(ctx, c, nil, log.Named("mcp"))
}

func newSession(ctx context.Context, c *client.Client, cmd *exec.Cmd, log *logging.Logger) (*clientSession, error) {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "loki",
				Version: "1.0.0",
			},
		},
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	return &clientSession{client: c, cmd: cmd, log: log}, nil
}

func dialEventStream(ctx context.Context, ep Endpoint) (*client.Client, error) {
	var opts []transport.ClientOption
	switch {
	case len(ep.Headers) > 0:
		opts = append(opts, transport.WithHeaders(ep.Headers))
	}

	c, err := client.NewSSEMCPClient(ep.Address, opts...)
	if err != nil {
		return nil, err
	}

	// The transport must be started before Initialize.
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}
	return c, nil
}

func dialStreamableHTTP(ctx context.Context, ep Endpoint) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	switch {
	case len(ep.Headers) > 0:
		opts = append(opts, transport.WithHTTPHeaders(ep.Headers))
	}

	c, err := client.NewStreamableHttpClient(ep.Address, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
	}
	return c, nil
}

// dialStreamSocket spawns the subprocess. The stdio client starts its
// transport itself.
func dialStreamSocket(fields []string) (*client.Client, *exec.Cmd, error) {
	var captured *exec.Cmd
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		captured = cmd
		return cmd, nil
	}

	c, err := client.NewStdioMCPClientWithOptions(
		fields[0],
		os.Environ(),
		fields[1:],
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}
	return c, captured, nil
}

func (s *clientSession) ListTools(ctx context.Context) ([]mcptypes.Tool, error) {
	res, err := s.client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return res.Tools, nil
}

func (s *clientSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := s.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("remote tool %s failed: %w", name, err)
	}
	return ResultText(res), nil
}

func (s *clientSession) Close() error {
	err := s.client.Close()
	if s.cmd != nil && s.cmd.Process != nil {
		s.log.Debug("remote toolset process closed", "pid", s.cmd.Process.Pid)
	}
	return err
}

// ResultText joins text contents with newlines; other content kinds are
// JSON-encoded. Error results get an "Error: " prefix.
func ResultText(res *mcptypes.CallToolResult) string {
	if res == nil {
		return ""
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := mcptypes.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if tc, ok := c.(*mcptypes.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		b, err := json.Marshal(c)
		if err != nil {
			parts = append(parts, fmt.Sprint(c))
			continue
		}
		parts = append(parts, string(b))
	}

	if len(parts) == 0 && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(b))
		}
	}

	text := strings.Join(parts, "\n")
	if res.IsError {
		return "Error: " + text
	}
	return text
}
