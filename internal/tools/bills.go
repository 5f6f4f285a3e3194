package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type listBillsArgs struct {
	EndUserID  string `json:"endUserId"`
	VendorID   string `json:"vendorId"`
	VendorName string `json:"vendorName"`
	IsPaid     *bool  `json:"isPaid"`
	RefNumber  string `json:"refNumber"`
	Memo       string `json:"memo"`
	StartDate  string `json:"startDate" validate:"omitempty,isodate"`
	EndDate    string `json:"endDate" validate:"omitempty,isodate"`
	Limit      *int   `json:"limit" validate:"omitempty,min=1,max=100"`
	Cursor     string `json:"cursor"`
}

type billIDArgs struct {
	EndUserID string `json:"endUserId"`
	BillID    string `json:"billId" validate:"required"`
}

// billLine is one line of a create or update request.
type billLine struct {
	ID          string   `json:"id,omitempty"`
	Description string   `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Rate        string   `json:"rate,omitempty" validate:"omitempty,amount"`
	Amount      string   `json:"amount" validate:"required,amount"`
	AccountID   string   `json:"accountId,omitempty"`
	ItemID      string   `json:"itemId,omitempty"`
	ClassID     string   `json:"classId,omitempty"`
	CustomerID  string   `json:"customerId,omitempty"`
}

type createBillArgs struct {
	EndUserID       string     `json:"endUserId"`
	VendorID        string     `json:"vendorId" validate:"required"`
	TransactionDate string     `json:"transactionDate" validate:"required,isodate"`
	DueDate         string     `json:"dueDate" validate:"omitempty,isodate"`
	RefNumber       string     `json:"refNumber"`
	Memo            string     `json:"memo"`
	Lines           []billLine `json:"lines" validate:"required,min=1,dive"`
}

type updateBillArgs struct {
	EndUserID       string     `json:"endUserId"`
	BillID          string     `json:"billId" validate:"required"`
	RevisionNumber  string     `json:"revisionNumber" validate:"required,revision"`
	VendorID        string     `json:"vendorId"`
	TransactionDate string     `json:"transactionDate" validate:"omitempty,isodate"`
	DueDate         string     `json:"dueDate" validate:"omitempty,isodate"`
	RefNumber       *string    `json:"refNumber"`
	Memo            *string    `json:"memo"`
	Lines           []billLine `json:"lines" validate:"omitempty,dive"`
}

var billLineSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":          map[string]any{"type": "string", "description": "Line ID for existing lines to update"},
		"description": map[string]any{"type": "string", "description": "Line item description"},
		"quantity":    map[string]any{"type": "number", "description": "Quantity"},
		"rate":        map[string]any{"type": "string", "description": "Rate per unit as decimal string"},
		"amount":      map[string]any{"type": "string", "description": "Line total amount as decimal string"},
		"accountId":   map[string]any{"type": "string", "description": "Account ID for this line"},
		"itemId":      map[string]any{"type": "string", "description": "Item ID for this line"},
		"classId":     map[string]any{"type": "string", "description": "Class ID for this line"},
		"customerId":  map[string]any{"type": "string", "description": "Customer ID for billable expenses"},
	},
	"required": []string{"amount"},
}

func (t *Toolset) billTools() []tool {
	return []tool{
		{
			def: mcp.NewTool("list_bills", options(
				[]mcp.ToolOption{
					mcp.WithDescription("List vendor bills from QuickBooks Desktop with filtering options"),
					mcp.WithReadOnlyHintAnnotation(true),
					withEndUserID(),
					mcp.WithString("vendorId", mcp.Description("Filter by vendor ID")),
					mcp.WithString("vendorName", mcp.Description("Filter by vendor name (partial match)")),
					mcp.WithBoolean("isPaid", mcp.Description("Filter by payment status")),
					mcp.WithString("refNumber", mcp.Description("Filter by reference number")),
					mcp.WithString("memo", mcp.Description("Filter by memo content")),
				},
				withDateRange(),
				withPagination(),
			)...),
			handle: t.listBills,
		},
		{
			def: mcp.NewTool("get_bill",
				mcp.WithDescription("Retrieve details for a specific bill"),
				mcp.WithReadOnlyHintAnnotation(true),
				withEndUserID(),
				mcp.WithString("billId", mcp.Required(), mcp.Description("QuickBooks bill ID")),
			),
			handle: t.getBill,
		},
		{
			def: mcp.NewTool("create_bill",
				mcp.WithDescription("Create a new vendor bill in QuickBooks Desktop"),
				withEndUserID(),
				mcp.WithString("vendorId", mcp.Required(), mcp.Description("Vendor ID")),
				mcp.WithString("transactionDate", mcp.Required(), mcp.Description("Transaction date in YYYY-MM-DD format")),
				mcp.WithString("dueDate", mcp.Description("Due date in YYYY-MM-DD format")),
				mcp.WithString("refNumber", mcp.Description("Reference number")),
				mcp.WithString("memo", mcp.Description("Memo")),
				mcp.WithArray("lines", mcp.Required(), mcp.Description("Bill line items"), mcp.Items(billLineSchema)),
			),
			handle: t.createBill,
		},
		{
			def: mcp.NewTool("update_bill",
				mcp.WithDescription("Modify an existing bill. Requires the current revision number."),
				withEndUserID(),
				mcp.WithString("billId", mcp.Required(), mcp.Description("QuickBooks bill ID")),
				mcp.WithString("revisionNumber", mcp.Required(), mcp.Description("Current revision number of the bill")),
				mcp.WithString("vendorId", mcp.Description("New vendor ID")),
				mcp.WithString("transactionDate", mcp.Description("New transaction date in YYYY-MM-DD format")),
				mcp.WithString("dueDate", mcp.Description("New due date in YYYY-MM-DD format")),
				mcp.WithString("refNumber", mcp.Description("New reference number")),
				mcp.WithString("memo", mcp.Description("New memo")),
				mcp.WithArray("lines", mcp.Description("Updated bill line items"), mcp.Items(billLineSchema)),
			),
			handle: t.updateBill,
		},
	}
}

func (t *Toolset) listBills(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args listBillsArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	params := conductor.Params{"limit": limitOr(args.Limit)}.
		Set("cursor", args.Cursor).
		Set("vendorId", args.VendorID).
		Set("vendor", args.VendorName).
		Set("isPaid", args.IsPaid).
		Set("refNumber", args.RefNumber).
		Set("memo", args.Memo).
		Set("transactionDateFrom", args.StartDate).
		Set("transactionDateTo", args.EndDate)
	page, err := client.GetPage(ctx, accounting.EndpointBills, params, true)
	if err != nil {
		return nil, err
	}
	env := paginated(records(page), len(page.Data), page.HasMore, page.NextCursor, client.EndUserID())
	if s := summarize("QuickBooks Bills", page.Data, billSummary); s != "" {
		env.Metadata["summary"] = s
	}
	return env, nil
}

func (t *Toolset) getBill(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args billIDArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	out, err := client.Get(ctx, accounting.ItemPath(accounting.EndpointBills, args.BillID), nil, true)
	if err != nil {
		return nil, err
	}
	meta := Meta{"endUserId": client.EndUserID()}
	var b accounting.Bill
	if json.Unmarshal(out, &b) == nil {
		meta["summary"] = billSummary(b)
	}
	return success(out, meta), nil
}

func (t *Toolset) createBill(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args createBillArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	body := conductor.Params{
		"vendorId":        args.VendorID,
		"transactionDate": args.TransactionDate,
		"lines":           args.Lines,
	}.
		Set("dueDate", args.DueDate).
		Set("refNumber", args.RefNumber).
		Set("memo", args.Memo)
	out, err := client.Post(ctx, accounting.EndpointBills, body, true)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{
		"message":   fmt.Sprintf("Bill created successfully for vendor %s", args.VendorID),
		"endUserId": client.EndUserID(),
	}), nil
}

func (t *Toolset) updateBill(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args updateBillArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	body := conductor.Params{"revisionNumber": args.RevisionNumber}.
		Set("vendorId", args.VendorID).
		Set("transactionDate", args.TransactionDate).
		Set("dueDate", args.DueDate)
	if args.RefNumber != nil {
		body["refNumber"] = *args.RefNumber
	}
	if args.Memo != nil {
		body["memo"] = *args.Memo
	}
	if len(args.Lines) > 0 {
		body["lines"] = args.Lines
	}
	out, err := client.Post(ctx, accounting.ItemPath(accounting.EndpointBills, args.BillID), body, true)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{
		"message":   fmt.Sprintf("Bill %s updated successfully", args.BillID),
		"endUserId": client.EndUserID(),
	}), nil
}
