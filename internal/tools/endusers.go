package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type createEndUserArgs struct {
	SourceID    string `json:"sourceId"`
	Email       string `json:"email" validate:"omitempty,email"`
	CompanyName string `json:"companyName"`
}

type listEndUsersArgs struct {
	Limit  *int   `json:"limit" validate:"omitempty,min=1,max=100"`
	Cursor string `json:"cursor"`
}

type endUserIDArgs struct {
	EndUserID string `json:"endUserId" validate:"required"`
}

func (t *Toolset) endUserTools() []tool {
	return []tool{
		{
			def: mcp.NewTool("create_end_user",
				mcp.WithDescription("Create a new QuickBooks end-user. An end-user represents one QuickBooks Desktop company file owner."),
				mcp.WithString("sourceId", mcp.Description("Your internal ID for this end-user")),
				mcp.WithString("email", mcp.Description("Email address of the end-user")),
				mcp.WithString("companyName", mcp.Description("Company name for the end-user")),
			),
			handle: t.createEndUser,
		},
		{
			def: mcp.NewTool("list_end_users", options(
				[]mcp.ToolOption{
					mcp.WithDescription("List all QuickBooks end-users"),
					mcp.WithReadOnlyHintAnnotation(true),
				},
				withPagination(),
			)...),
			handle: t.listEndUsers,
		},
		{
			def: mcp.NewTool("get_end_user",
				mcp.WithDescription("Retrieve details for a specific end-user"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("endUserId", mcp.Required(), mcp.Description("End-user ID to retrieve")),
			),
			handle: t.getEndUser,
		},
		{
			def: mcp.NewTool("delete_end_user",
				mcp.WithDescription("Delete an end-user and its QuickBooks Desktop connection"),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("endUserId", mcp.Required(), mcp.Description("End-user ID to delete")),
			),
			handle: t.deleteEndUser,
		},
	}
}

func (t *Toolset) createEndUser(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args createEndUserArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	body := conductor.Params{}.
		Set("sourceId", args.SourceID).
		Set("email", args.Email).
		Set("companyName", args.CompanyName)
	out, err := t.client.Post(ctx, accounting.EndpointEndUsers, body, true)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{"message": "End-user created successfully"}), nil
}

func (t *Toolset) listEndUsers(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args listEndUsersArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	params := conductor.Params{"limit": limitOr(args.Limit)}.Set("cursor", args.Cursor)
	page, err := t.client.GetPage(ctx, accounting.EndpointEndUsers, params, true)
	if err != nil {
		return nil, err
	}
	return paginated(records(page), len(page.Data), page.HasMore, page.NextCursor, t.client.EndUserID()), nil
}

func (t *Toolset) getEndUser(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args endUserIDArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := t.client.Get(ctx, accounting.ItemPath(accounting.EndpointEndUsers, args.EndUserID), nil, true)
	if err != nil {
		return nil, err
	}
	return success(out, nil), nil
}

func (t *Toolset) deleteEndUser(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args endUserIDArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	if _, err := t.client.Delete(ctx, accounting.ItemPath(accounting.EndpointEndUsers, args.EndUserID), true); err != nil {
		return nil, err
	}
	// Reads cached on behalf of the deleted end-user can no longer be valid.
	t.client.ForEndUser(args.EndUserID).InvalidateCache()
	return success(nil, Meta{
		"message": fmt.Sprintf("End-user %s deleted successfully", args.EndUserID),
	}), nil
}

// records returns the page data, never nil.
func records(p *conductor.Page) []json.RawMessage {
	if p.Data == nil {
		return []json.RawMessage{}
	}
	return p.Data
}
