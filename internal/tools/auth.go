package tools

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/apierr"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type createAuthSessionArgs struct {
	EndUserID   string `json:"endUserId" validate:"required"`
	RedirectURL string `json:"redirectUrl" validate:"omitempty,url"`
}

type endUserOnlyArgs struct {
	EndUserID string `json:"endUserId"`
}

// ConnectionStatus is the data of a check_connection_status result.
type ConnectionStatus struct {
	Connected   bool   `json:"connected"`
	Status      string `json:"status"`
	EndUserID   string `json:"endUserId"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

func (t *Toolset) authTools() []tool {
	return []tool{
		{
			def: mcp.NewTool("create_auth_session",
				mcp.WithDescription(multiline(
					"Create an authentication session so an end-user can connect QuickBooks Desktop",
					"\nUsage notes:",
					"- Direct the end-user to the returned authFlowUrl",
					"- QuickBooks Desktop must be running with the company file open",
				)),
				mcp.WithString("endUserId", mcp.Required(), mcp.Description("End-user ID to create auth session for")),
				mcp.WithString("redirectUrl", mcp.Description("URL to redirect to after authentication")),
			),
			handle: t.createAuthSession,
		},
		{
			def: mcp.NewTool("check_connection_status",
				mcp.WithDescription("Check whether QuickBooks Desktop is connected and responding for an end-user"),
				mcp.WithReadOnlyHintAnnotation(true),
				withEndUserID(),
			),
			handle: t.checkConnectionStatus,
		},
	}
}

func (t *Toolset) createAuthSession(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args createAuthSessionArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	body := conductor.Params{
		"publishableKey": t.publishableKey,
		"endUserId":      args.EndUserID,
	}.Set("redirectUrl", args.RedirectURL)
	out, err := t.client.Post(ctx, accounting.EndpointAuthSessions, body, false)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{
		"message":      "Authentication session created successfully. Direct the end-user to the provided URL to connect their QuickBooks Desktop.",
		"instructions": "The end-user should visit the authentication URL while QuickBooks Desktop is running with their company file open.",
	}), nil
}

func (t *Toolset) checkConnectionStatus(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args endUserOnlyArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	status := ConnectionStatus{
		EndUserID:   client.EndUserID(),
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}

	_, err := client.Get(ctx, accounting.EndpointHealthCheck, nil, false)
	switch {
	case err == nil:
		status.Connected = true
		status.Status = "active"
		return success(status, Meta{"message": "QuickBooks Desktop connection is active and healthy"}), nil
	case disconnected(err):
		status.Status = "disconnected"
		status.Error = "QuickBooks Desktop is not connected or not responding"
		return success(status, Meta{
			"message":      "QuickBooks Desktop connection is not active",
			"instructions": "Ensure QuickBooks Desktop is running with a company file open, or create a new auth session if needed.",
		}), nil
	default:
		return nil, err
	}
}

// disconnected reports whether err means the desktop side is unreachable, as
// opposed to a failure of the request itself.
func disconnected(err error) bool {
	e := apierr.Translate(err)
	return e.Kind == apierr.KindUpstreamUnavailable ||
		strings.Contains(strings.ToLower(e.Message), "not connected")
}
