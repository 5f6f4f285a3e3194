// Package tools exposes the Conductor operations as MCP tools. Every tool
// answers with a JSON envelope; failures come back as error results, never
// as protocol errors.
package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/leonardcser/qbd-mcp/internal/apierr"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
	"github.com/leonardcser/qbd-mcp/internal/metrics"
)

// ServerName is announced to MCP clients.
const ServerName = "QuickBooks Desktop MCP"

const endUserIDDescription = "End-user ID to use for this operation (optional, uses default if not provided)"

// Deps are the collaborators shared by every tool.
type Deps struct {
	Client *conductor.Client
	// PublishableKey is sent when creating auth sessions.
	PublishableKey string
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	// Disabled tool names are not registered.
	Disabled []string
}

// Toolset builds the tool catalogue over one client.
type Toolset struct {
	client         *conductor.Client
	publishableKey string
	log            *zap.Logger
	metrics        *metrics.Metrics
	disabled       map[string]struct{}
}

type handlerFunc func(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error)

type tool struct {
	def    mcp.Tool
	handle handlerFunc
}

// New returns a Toolset for deps.
func New(deps Deps) *Toolset {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	disabled := make(map[string]struct{}, len(deps.Disabled))
	for _, name := range deps.Disabled {
		disabled[strings.TrimSpace(name)] = struct{}{}
	}
	return &Toolset{
		client:         deps.Client,
		publishableKey: deps.PublishableKey,
		log:            log.Named("tools"),
		metrics:        deps.Metrics,
		disabled:       disabled,
	}
}

// NewServer initializes the MCP server with every enabled tool registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		conductor.Version,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	ts := New(deps)
	tools := ts.Tools()
	s.AddTools(tools...)
	ts.log.Info("registered tools", zap.Int("count", len(tools)), zap.Int("disabled", len(ts.disabled)))
	return s
}

// Tools returns the enabled tools in catalogue order.
func (t *Toolset) Tools() []server.ServerTool {
	var out []server.ServerTool
	for _, group := range [][]tool{
		t.endUserTools(),
		t.authTools(),
		t.accountTools(),
		t.billTools(),
		t.paymentTools(),
		t.reportingTools(),
		t.advancedTools(),
	} {
		for _, tl := range group {
			if _, off := t.disabled[tl.def.Name]; off {
				t.log.Debug("tool disabled", zap.String("tool", tl.def.Name))
				continue
			}
			out = append(out, server.ServerTool{Tool: tl.def, Handler: t.wrap(tl.def.Name, tl.handle)})
		}
	}
	return out
}

// wrap renders the envelope, translating any error into a failure result.
func (t *Toolset) wrap(name string, fn handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		env, err := t.invoke(ctx, req, fn)
		if err != nil {
			e := apierr.Translate(err)
			t.metrics.ToolCall(name, false)
			fields := []zap.Field{
				zap.String("tool", name),
				zap.String("kind", string(e.Kind)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(e),
			}
			if e.Kind == apierr.KindValidation {
				t.log.Warn("tool call rejected", fields...)
			} else {
				t.log.Error("tool call failed", fields...)
			}
			return mcp.NewToolResultError(render(failure(e, t.endUserOf(req)))), nil
		}
		t.metrics.ToolCall(name, true)
		t.log.Info("tool call completed", zap.String("tool", name), zap.Duration("duration", time.Since(start)))
		return mcp.NewToolResultText(render(env)), nil
	}
}

// invoke runs fn, turning a panic into a Generic failure so it still
// reaches the caller as an envelope.
func (t *Toolset) invoke(ctx context.Context, req mcp.CallToolRequest, fn handlerFunc) (env *Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tool handler panicked",
				zap.String("tool", req.Params.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			env, err = nil, apierr.New(apierr.KindGeneric, fmt.Sprintf("Internal error: %v", r))
		}
	}()
	return fn(ctx, req)
}

// clientFor returns the client bound to endUserID, or the default one.
func (t *Toolset) clientFor(endUserID string) *conductor.Client {
	return t.client.ForEndUser(endUserID)
}

func (t *Toolset) endUserOf(req mcp.CallToolRequest) string {
	if id := req.GetString("endUserId", ""); id != "" {
		return id
	}
	if t.client == nil {
		return ""
	}
	return t.client.EndUserID()
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func withEndUserID() mcp.ToolOption {
	return mcp.WithString("endUserId", mcp.Description(endUserIDDescription))
}

func withPagination() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("limit",
			mcp.Description("Number of records to return (1-100)"),
			mcp.Min(1), mcp.Max(100), mcp.DefaultNumber(50)),
		mcp.WithString("cursor", mcp.Description("Cursor for pagination to get the next page of results")),
	}
}

func withDateRange() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("startDate", mcp.Description("Start date in YYYY-MM-DD format")),
		mcp.WithString("endDate", mcp.Description("End date in YYYY-MM-DD format")),
	}
}

// options flattens option groups for mcp.NewTool.
func options(groups ...[]mcp.ToolOption) []mcp.ToolOption {
	return slices.Concat(groups...)
}

func limitOr(limit *int) int {
	if limit == nil {
		return 50
	}
	return *limit
}
