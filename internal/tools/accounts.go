package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type listAccountsArgs struct {
	EndUserID       string `json:"endUserId"`
	AccountType     string `json:"accountType" validate:"omitempty,account_type"`
	IsActive        *bool  `json:"isActive"`
	NameContains    string `json:"nameContains"`
	IncludeInactive bool   `json:"includeInactive"`
	Limit           *int   `json:"limit" validate:"omitempty,min=1,max=100"`
	Cursor          string `json:"cursor"`
}

type accountIDArgs struct {
	EndUserID string `json:"endUserId"`
	AccountID string `json:"accountId" validate:"required"`
}

type createAccountArgs struct {
	EndUserID     string `json:"endUserId"`
	Name          string `json:"name" validate:"required"`
	AccountType   string `json:"accountType" validate:"required,account_type"`
	Description   string `json:"description"`
	AccountNumber string `json:"accountNumber"`
	ParentID      string `json:"parentId"`
	IsActive      *bool  `json:"isActive"`
}

type updateAccountArgs struct {
	EndUserID      string  `json:"endUserId"`
	AccountID      string  `json:"accountId" validate:"required"`
	RevisionNumber string  `json:"revisionNumber" validate:"required,revision"`
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	AccountNumber  *string `json:"accountNumber"`
	IsActive       *bool   `json:"isActive"`
}

func (t *Toolset) accountTools() []tool {
	return []tool{
		{
			def: mcp.NewTool("list_accounts", options(
				[]mcp.ToolOption{
					mcp.WithDescription("Get chart of accounts from QuickBooks Desktop with filtering options"),
					mcp.WithReadOnlyHintAnnotation(true),
					withEndUserID(),
					mcp.WithString("accountType", mcp.Description("Filter by account type"), mcp.Enum(accounting.AccountTypes...)),
					mcp.WithBoolean("isActive", mcp.Description("Filter by active status")),
					mcp.WithString("nameContains", mcp.Description("Filter accounts where name contains this string")),
					mcp.WithBoolean("includeInactive", mcp.Description("Include inactive accounts in results"), mcp.DefaultBool(false)),
				},
				withPagination(),
			)...),
			handle: t.listAccounts,
		},
		{
			def: mcp.NewTool("get_account",
				mcp.WithDescription("Retrieve details for a specific QuickBooks account"),
				mcp.WithReadOnlyHintAnnotation(true),
				withEndUserID(),
				mcp.WithString("accountId", mcp.Required(), mcp.Description("QuickBooks account ID")),
			),
			handle: t.getAccount,
		},
		{
			def: mcp.NewTool("create_account",
				mcp.WithDescription("Create a new financial account in QuickBooks Desktop"),
				withEndUserID(),
				mcp.WithString("name", mcp.Required(), mcp.Description("Account name")),
				mcp.WithString("accountType", mcp.Required(), mcp.Description("Account type"), mcp.Enum(accounting.AccountTypes...)),
				mcp.WithString("description", mcp.Description("Account description")),
				mcp.WithString("accountNumber", mcp.Description("Account number")),
				mcp.WithString("parentId", mcp.Description("Parent account ID for sub-accounts")),
				mcp.WithBoolean("isActive", mcp.Description("Whether the account is active"), mcp.DefaultBool(true)),
			),
			handle: t.createAccount,
		},
		{
			def: mcp.NewTool("update_account",
				mcp.WithDescription("Modify an existing QuickBooks account. Requires the current revision number."),
				withEndUserID(),
				mcp.WithString("accountId", mcp.Required(), mcp.Description("QuickBooks account ID")),
				mcp.WithString("revisionNumber", mcp.Required(), mcp.Description("Current revision number of the account")),
				mcp.WithString("name", mcp.Description("New account name")),
				mcp.WithString("description", mcp.Description("New account description")),
				mcp.WithString("accountNumber", mcp.Description("New account number")),
				mcp.WithBoolean("isActive", mcp.Description("New active status")),
			),
			handle: t.updateAccount,
		},
	}
}

func (t *Toolset) listAccounts(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args listAccountsArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	params := conductor.Params{"limit": limitOr(args.Limit)}.
		Set("cursor", args.Cursor).
		Set("accountType", args.AccountType).
		Set("isActive", args.IsActive).
		Set("name", args.NameContains)
	if args.IncludeInactive {
		params["includeInactive"] = true
	}
	page, err := client.GetPage(ctx, accounting.EndpointAccounts, params, true)
	if err != nil {
		return nil, err
	}
	env := paginated(records(page), len(page.Data), page.HasMore, page.NextCursor, client.EndUserID())
	if s := summarize("QuickBooks Accounts", page.Data, accountSummary); s != "" {
		env.Metadata["summary"] = s
	}
	return env, nil
}

func (t *Toolset) getAccount(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args accountIDArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	out, err := client.Get(ctx, accounting.ItemPath(accounting.EndpointAccounts, args.AccountID), nil, true)
	if err != nil {
		return nil, err
	}
	meta := Meta{"endUserId": client.EndUserID()}
	var a accounting.Account
	if json.Unmarshal(out, &a) == nil {
		meta["summary"] = accountSummary(a)
	}
	return success(out, meta), nil
}

func (t *Toolset) createAccount(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args createAccountArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	active := true
	if args.IsActive != nil {
		active = *args.IsActive
	}
	client := t.clientFor(args.EndUserID)
	body := conductor.Params{
		"name":        args.Name,
		"accountType": args.AccountType,
		"isActive":    active,
	}.
		Set("description", args.Description).
		Set("accountNumber", args.AccountNumber).
		Set("parentId", args.ParentID)
	out, err := client.Post(ctx, accounting.EndpointAccounts, body, true)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{
		"message":   fmt.Sprintf("Account %q created successfully", args.Name),
		"endUserId": client.EndUserID(),
	}), nil
}

func (t *Toolset) updateAccount(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args updateAccountArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	body := conductor.Params{"revisionNumber": args.RevisionNumber}.
		Set("name", args.Name).
		Set("isActive", args.IsActive)
	// Present-but-empty strings clear the field upstream.
	if args.Description != nil {
		body["description"] = *args.Description
	}
	if args.AccountNumber != nil {
		body["accountNumber"] = *args.AccountNumber
	}
	out, err := client.Post(ctx, accounting.ItemPath(accounting.EndpointAccounts, args.AccountID), body, true)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{
		"message":   fmt.Sprintf("Account %s updated successfully", args.AccountID),
		"endUserId": client.EndUserID(),
	}), nil
}
