package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type listPaymentsArgs struct {
	EndUserID string `json:"endUserId"`
	PayeeID   string `json:"payeeId"`
	AccountID string `json:"accountId"`
	RefNumber string `json:"refNumber"`
	StartDate string `json:"startDate" validate:"omitempty,isodate"`
	EndDate   string `json:"endDate" validate:"omitempty,isodate"`
	Limit     *int   `json:"limit" validate:"omitempty,min=1,max=100"`
	Cursor    string `json:"cursor"`
}

// appliedBill is the wire shape of a payment application in requests.
type appliedBill struct {
	BillID        string `json:"billId" validate:"required"`
	AppliedAmount string `json:"appliedAmount" validate:"required,amount"`
}

type createPaymentArgs struct {
	EndUserID       string        `json:"endUserId"`
	PaymentType     string        `json:"paymentType"`
	PayeeID         string        `json:"payeeId" validate:"required"`
	AccountID       string        `json:"accountId" validate:"required"`
	TransactionDate string        `json:"transactionDate" validate:"required,isodate"`
	RefNumber       string        `json:"refNumber"`
	Memo            string        `json:"memo"`
	AppliedToBills  []appliedBill `json:"appliedToBills" validate:"required,min=1,dive"`
}

type updatePaymentArgs struct {
	EndUserID      string        `json:"endUserId"`
	PaymentID      string        `json:"paymentId" validate:"required"`
	PaymentType    string        `json:"paymentType" validate:"required,oneof=check credit_card"`
	RevisionNumber string        `json:"revisionNumber" validate:"required,revision"`
	RefNumber      *string       `json:"refNumber"`
	Memo           *string       `json:"memo"`
	AppliedToBills []appliedBill `json:"appliedToBills" validate:"omitempty,dive"`
}

type deletePaymentArgs struct {
	EndUserID   string `json:"endUserId"`
	PaymentID   string `json:"paymentId" validate:"required"`
	PaymentType string `json:"paymentType" validate:"required,oneof=check credit_card"`
}

var appliedBillSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"billId":        map[string]any{"type": "string", "description": "Bill ID to apply payment to"},
		"appliedAmount": map[string]any{"type": "string", "description": "Amount to apply as decimal string"},
	},
	"required": []string{"billId", "appliedAmount"},
}

// paymentKind describes one of the two bill payment collections.
type paymentKind struct {
	paymentType string
	title       string
	listTool    string
	createTool  string
}

var paymentKinds = []paymentKind{
	{accounting.PaymentTypeCheck, "Bill Check Payments", "list_bill_check_payments", "create_bill_check_payment"},
	{accounting.PaymentTypeCreditCard, "Bill Credit Card Payments", "list_bill_credit_card_payments", "create_bill_credit_card_payment"},
}

func paymentLabel(paymentType string) string {
	if paymentType == accounting.PaymentTypeCheck {
		return "Check"
	}
	return "Credit card"
}

func (t *Toolset) paymentTools() []tool {
	var out []tool
	for _, k := range paymentKinds {
		out = append(out, tool{
			def: mcp.NewTool(k.listTool, options(
				[]mcp.ToolOption{
					mcp.WithDescription(fmt.Sprintf("List bill %s payments from QuickBooks Desktop", k.noun())),
					mcp.WithReadOnlyHintAnnotation(true),
					withEndUserID(),
					mcp.WithString("payeeId", mcp.Description("Filter by payee (vendor) ID")),
					mcp.WithString("accountId", mcp.Description("Filter by payment account ID")),
					mcp.WithString("refNumber", mcp.Description("Filter by reference number")),
				},
				withDateRange(),
				withPagination(),
			)...),
			handle: t.listPayments(k),
		})
	}
	for _, k := range paymentKinds {
		out = append(out, tool{
			def: mcp.NewTool(k.createTool,
				mcp.WithDescription(fmt.Sprintf("Create a bill %s payment applied to one or more bills", k.noun())),
				withEndUserID(),
				mcp.WithString("payeeId", mcp.Required(), mcp.Description("Payee (vendor) ID")),
				mcp.WithString("accountId", mcp.Required(), mcp.Description("Payment account ID")),
				mcp.WithString("transactionDate", mcp.Required(), mcp.Description("Payment date in YYYY-MM-DD format")),
				mcp.WithString("refNumber", mcp.Description("Reference number")),
				mcp.WithString("memo", mcp.Description("Payment memo")),
				mcp.WithArray("appliedToBills", mcp.Required(), mcp.Description("Bills to apply this payment to"), mcp.Items(appliedBillSchema)),
			),
			handle: t.createPayment(k),
		})
	}
	return append(out,
		tool{
			def: mcp.NewTool("update_payment",
				mcp.WithDescription("Modify an existing bill payment. Requires the current revision number."),
				withEndUserID(),
				mcp.WithString("paymentId", mcp.Required(), mcp.Description("QuickBooks bill payment ID")),
				mcp.WithString("paymentType", mcp.Required(), mcp.Description("Payment type"),
					mcp.Enum(accounting.PaymentTypeCheck, accounting.PaymentTypeCreditCard)),
				mcp.WithString("revisionNumber", mcp.Required(), mcp.Description("Current revision number of the payment")),
				mcp.WithString("refNumber", mcp.Description("New reference number")),
				mcp.WithString("memo", mcp.Description("New memo")),
				mcp.WithArray("appliedToBills", mcp.Description("Updated bill applications"), mcp.Items(appliedBillSchema)),
			),
			handle: t.updatePayment,
		},
		tool{
			def: mcp.NewTool("delete_payment",
				mcp.WithDescription("Delete a bill payment"),
				mcp.WithDestructiveHintAnnotation(true),
				withEndUserID(),
				mcp.WithString("paymentId", mcp.Required(), mcp.Description("QuickBooks bill payment ID")),
				mcp.WithString("paymentType", mcp.Required(), mcp.Description("Payment type"),
					mcp.Enum(accounting.PaymentTypeCheck, accounting.PaymentTypeCreditCard)),
			),
			handle: t.deletePayment,
		},
	)
}

func (k paymentKind) noun() string {
	if k.paymentType == accounting.PaymentTypeCheck {
		return "check"
	}
	return "credit card"
}

func (t *Toolset) listPayments(k paymentKind) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
		var args listPaymentsArgs
		if err := bind(req, &args); err != nil {
			return nil, err
		}
		client := t.clientFor(args.EndUserID)
		params := conductor.Params{"limit": limitOr(args.Limit)}.
			Set("cursor", args.Cursor).
			Set("payeeId", args.PayeeID).
			Set("accountId", args.AccountID).
			Set("refNumber", args.RefNumber).
			Set("transactionDateFrom", args.StartDate).
			Set("transactionDateTo", args.EndDate)
		page, err := client.GetPage(ctx, accounting.PaymentEndpoint(k.paymentType), params, true)
		if err != nil {
			return nil, err
		}
		env := paginated(records(page), len(page.Data), page.HasMore, page.NextCursor, client.EndUserID())
		if s := summarize(k.title, page.Data, paymentSummary); s != "" {
			env.Metadata["summary"] = s
		}
		return env, nil
	}
}

func (t *Toolset) createPayment(k paymentKind) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
		var args createPaymentArgs
		if err := bind(req, &args); err != nil {
			return nil, err
		}
		if args.PaymentType != "" && args.PaymentType != k.paymentType {
			return nil, validationField("paymentType", "must be "+k.paymentType)
		}
		client := t.clientFor(args.EndUserID)
		body := conductor.Params{
			"payeeId":         args.PayeeID,
			"accountId":       args.AccountID,
			"transactionDate": args.TransactionDate,
			"appliedToBills":  args.AppliedToBills,
		}.
			Set("refNumber", args.RefNumber).
			Set("memo", args.Memo)
		out, err := client.Post(ctx, accounting.PaymentEndpoint(k.paymentType), body, true)
		if err != nil {
			return nil, err
		}
		return success(out, Meta{
			"message":   fmt.Sprintf("%s payment created successfully for payee %s", paymentLabel(k.paymentType), args.PayeeID),
			"endUserId": client.EndUserID(),
		}), nil
	}
}

func (t *Toolset) updatePayment(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args updatePaymentArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	body := conductor.Params{"revisionNumber": args.RevisionNumber}
	if args.RefNumber != nil {
		body["refNumber"] = *args.RefNumber
	}
	if args.Memo != nil {
		body["memo"] = *args.Memo
	}
	if len(args.AppliedToBills) > 0 {
		body["appliedToBills"] = args.AppliedToBills
	}
	endpoint := accounting.ItemPath(accounting.PaymentEndpoint(args.PaymentType), args.PaymentID)
	out, err := client.Post(ctx, endpoint, body, true)
	if err != nil {
		return nil, err
	}
	return success(out, Meta{
		"message":   fmt.Sprintf("%s payment %s updated successfully", paymentLabel(args.PaymentType), args.PaymentID),
		"endUserId": client.EndUserID(),
	}), nil
}

func (t *Toolset) deletePayment(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args deletePaymentArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	endpoint := accounting.ItemPath(accounting.PaymentEndpoint(args.PaymentType), args.PaymentID)
	if _, err := client.Delete(ctx, endpoint, true); err != nil {
		return nil, err
	}
	return success(nil, Meta{
		"message":   fmt.Sprintf("%s payment %s deleted successfully", paymentLabel(args.PaymentType), args.PaymentID),
		"endUserId": client.EndUserID(),
	}), nil
}
