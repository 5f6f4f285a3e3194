package tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type passthroughArgs struct {
	EndUserID string            `json:"endUserId"`
	Method    string            `json:"method" validate:"required,oneof=GET POST PUT DELETE"`
	Endpoint  string            `json:"endpoint" validate:"required,startswith=/"`
	Data      map[string]any    `json:"data"`
	Params    map[string]string `json:"params"`
}

type bulkOperation struct {
	Type string         `json:"type" validate:"required,oneof=create_bill update_bill create_payment update_payment"`
	Data map[string]any `json:"data" validate:"required"`
}

type bulkArgs struct {
	EndUserID       string          `json:"endUserId"`
	Operations      []bulkOperation `json:"operations" validate:"required,min=1,max=10,dive"`
	ContinueOnError bool            `json:"continueOnError"`
}

func (t *Toolset) advancedTools() []tool {
	return []tool{
		{
			def: mcp.NewTool("passthrough_request",
				mcp.WithDescription(multiline(
					"Send a raw request to any Conductor API endpoint",
					"\nUsage notes:",
					"- Use only when no dedicated tool covers the endpoint",
					"- GET requests bypass the cache",
					"- PUT is sent as POST, which is how the QuickBooks Desktop API updates records",
					"- Successful writes clear the end-user's cached reads",
				)),
				withEndUserID(),
				mcp.WithString("method", mcp.Required(), mcp.Description("HTTP method"), mcp.Enum("GET", "POST", "PUT", "DELETE")),
				mcp.WithString("endpoint", mcp.Required(), mcp.Description("API endpoint path without base URL, e.g. /quickbooks-desktop/vendors")),
				mcp.WithObject("data", mcp.Description("Request body data for POST/PUT requests")),
				mcp.WithObject("params", mcp.Description("Query parameters")),
			),
			handle: t.passthroughRequest,
		},
		{
			def: mcp.NewTool("bulk_operations",
				mcp.WithDescription(multiline(
					"Run up to 10 bill and payment mutations in order",
					"\nFunctionality:",
					"- Operation types: create_bill, update_bill (data.billId), create_payment, update_payment (data.paymentId)",
					"- Payment operations take data.paymentType (check by default)",
					"- Stops at the first failure unless continueOnError is true",
				)),
				withEndUserID(),
				mcp.WithArray("operations",
					mcp.Required(),
					mcp.Description("List of operations to perform (max 10)"),
					mcp.Items(map[string]any{
						"type": "object",
						"properties": map[string]any{
							"type": map[string]any{
								"type": "string",
								"enum": []string{"create_bill", "update_bill", "create_payment", "update_payment"},
							},
							"data": map[string]any{"type": "object", "description": "Operation-specific data"},
						},
						"required": []string{"type", "data"},
					})),
				mcp.WithBoolean("continueOnError", mcp.Description("Continue processing if one operation fails"), mcp.DefaultBool(false)),
			),
			handle: t.bulkOperations,
		},
	}
}

func (t *Toolset) passthroughRequest(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args passthroughArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	t.log.Info("executing passthrough request",
		zap.String("method", args.Method),
		zap.String("endpoint", args.Endpoint),
		zap.String("endUserId", client.EndUserID()))

	var (
		result any
		err    error
	)
	switch args.Method {
	case http.MethodGet:
		params := conductor.Params{}
		for k, v := range args.Params {
			params[k] = v
		}
		result, err = client.Get(ctx, args.Endpoint, params, false)
	case http.MethodPost, http.MethodPut:
		body := args.Data
		if body == nil {
			body = map[string]any{}
		}
		result, err = client.Post(ctx, args.Endpoint, body, true)
	case http.MethodDelete:
		if _, err = client.Delete(ctx, args.Endpoint, true); err == nil {
			result = map[string]any{"success": true, "message": "Resource deleted successfully"}
		}
	}
	if err != nil {
		return nil, err
	}
	return success(result, Meta{
		"method":    args.Method,
		"endpoint":  args.Endpoint,
		"endUserId": client.EndUserID(),
		"message":   "Passthrough request completed successfully",
	}), nil
}

func (t *Toolset) bulkOperations(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args bulkArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	ops := make([]accounting.Operation, 0, len(args.Operations))
	for _, op := range args.Operations {
		ops = append(ops, accounting.Operation{Type: accounting.OperationType(op.Type), Data: op.Data})
	}
	t.log.Info("starting bulk operations",
		zap.Int("operations", len(ops)),
		zap.Bool("continueOnError", args.ContinueOnError),
		zap.String("endUserId", client.EndUserID()))

	report := accounting.NewBatchRunner(client, t.log).Run(ctx, ops, args.ContinueOnError)

	t.log.Info("bulk operations completed",
		zap.Int("total", report.Summary.Total),
		zap.Int("successful", report.Summary.Successful),
		zap.Int("failed", report.Summary.Failed))
	return success(report.Results, Meta{
		"summary":   report.Summary,
		"endUserId": client.EndUserID(),
		"message": fmt.Sprintf("Bulk operations completed: %d successful, %d failed",
			report.Summary.Successful, report.Summary.Failed),
	}), nil
}
