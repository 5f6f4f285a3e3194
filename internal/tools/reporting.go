package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

type taxLinesArgs struct {
	EndUserID string `json:"endUserId"`
	AccountID string `json:"accountId"`
}

type financialSummaryArgs struct {
	EndUserID       string   `json:"endUserId"`
	AccountTypes    []string `json:"accountTypes" validate:"omitempty,dive,account_type"`
	IncludeInactive bool     `json:"includeInactive"`
	StartDate       string   `json:"startDate" validate:"omitempty,isodate"`
	EndDate         string   `json:"endDate" validate:"omitempty,isodate"`
}

type vendorSpendingArgs struct {
	EndUserID       string `json:"endUserId"`
	VendorID        string `json:"vendorId"`
	IncludePayments *bool  `json:"includePayments"`
	StartDate       string `json:"startDate" validate:"omitempty,isodate"`
	EndDate         string `json:"endDate" validate:"omitempty,isodate"`
}

type financialSummaryView struct {
	*accounting.FinancialSummary
	TotalBalanceFormatted   string            `json:"totalBalanceFormatted"`
	BalancesByTypeFormatted map[string]string `json:"balancesByTypeFormatted"`
}

type vendorSpendingView struct {
	accounting.VendorSpending
	TotalBilledFormatted        string `json:"totalBilledFormatted"`
	TotalPaidFormatted          string `json:"totalPaidFormatted"`
	OutstandingBalanceFormatted string `json:"outstandingBalanceFormatted"`
}

func (t *Toolset) reportingTools() []tool {
	return []tool{
		{
			def: mcp.NewTool("get_account_tax_lines",
				mcp.WithDescription("Retrieve tax line assignments for accounts"),
				mcp.WithReadOnlyHintAnnotation(true),
				withEndUserID(),
				mcp.WithString("accountId", mcp.Description("Filter by specific account ID")),
			),
			handle: t.getAccountTaxLines,
		},
		{
			def: mcp.NewTool("generate_financial_summary", options(
				[]mcp.ToolOption{
					mcp.WithDescription(multiline(
						"Generate a financial summary of account balances grouped by account type",
						"\nUsage notes:",
						"- Reads every page of the chart of accounts, so it may take a while on large files",
						"- Balances are summed exactly and also returned formatted as US dollars",
					)),
					mcp.WithReadOnlyHintAnnotation(true),
					withEndUserID(),
					mcp.WithArray("accountTypes",
						mcp.Description("Account types to include in summary"),
						mcp.Items(map[string]any{"type": "string", "enum": accounting.AccountTypes})),
					mcp.WithBoolean("includeInactive", mcp.Description("Include inactive accounts"), mcp.DefaultBool(false)),
				},
				withDateRange(),
			)...),
			handle: t.generateFinancialSummary,
		},
		{
			def: mcp.NewTool("get_vendor_spending_analysis", options(
				[]mcp.ToolOption{
					mcp.WithDescription(multiline(
						"Analyze spending per vendor from bills and, optionally, bill payments",
						"\nUsage notes:",
						"- Vendors are ranked by total billed, highest first",
						"- Payments only count toward vendors that have bills in the date range",
					)),
					mcp.WithReadOnlyHintAnnotation(true),
					withEndUserID(),
					mcp.WithString("vendorId", mcp.Description("Analyze specific vendor, or all vendors if not provided")),
					mcp.WithBoolean("includePayments", mcp.Description("Include payment data in analysis"), mcp.DefaultBool(true)),
				},
				withDateRange(),
			)...),
			handle: t.getVendorSpendingAnalysis,
		},
	}
}

func (t *Toolset) getAccountTaxLines(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args taxLinesArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	params := conductor.Params{}.Set("accountId", args.AccountID)
	page, err := client.GetPage(ctx, accounting.EndpointAccountTaxLines, params, true)
	if err != nil {
		return nil, err
	}
	return success(records(page), Meta{
		"totalCount": len(page.Data),
		"endUserId":  client.EndUserID(),
		"message":    fmt.Sprintf("Retrieved %d tax line entries", len(page.Data)),
	}), nil
}

func (t *Toolset) generateFinancialSummary(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args financialSummaryArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	client := t.clientFor(args.EndUserID)
	summary, err := accounting.NewReporter(client, t.log).FinancialSummary(ctx, accounting.SummaryOptions{
		AccountTypes:    args.AccountTypes,
		IncludeInactive: args.IncludeInactive,
		DateRange:       accounting.DateRange{StartDate: args.StartDate, EndDate: args.EndDate},
	})
	if err != nil {
		return nil, err
	}

	view := financialSummaryView{
		FinancialSummary:        summary,
		TotalBalanceFormatted:   FormatAmount(summary.TotalBalance),
		BalancesByTypeFormatted: make(map[string]string, len(summary.BalancesByType)),
	}
	for accountType, balance := range summary.BalancesByType {
		view.BalancesByTypeFormatted[accountType] = FormatAmount(balance)
	}
	return success(view, Meta{
		"endUserId": client.EndUserID(),
		"message":   fmt.Sprintf("Financial summary generated for %d accounts", summary.TotalAccounts),
	}), nil
}

func (t *Toolset) getVendorSpendingAnalysis(ctx context.Context, req mcp.CallToolRequest) (*Envelope, error) {
	var args vendorSpendingArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	includePayments := true
	if args.IncludePayments != nil {
		includePayments = *args.IncludePayments
	}
	dateRange := accounting.DateRange{StartDate: args.StartDate, EndDate: args.EndDate}
	client := t.clientFor(args.EndUserID)
	report, err := accounting.NewReporter(client, t.log).VendorSpending(ctx, accounting.SpendingOptions{
		VendorID:        args.VendorID,
		IncludePayments: includePayments,
		DateRange:       dateRange,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]vendorSpendingView, 0, len(report.Vendors))
	for _, v := range report.Vendors {
		rows = append(rows, vendorSpendingView{
			VendorSpending:              v,
			TotalBilledFormatted:        FormatAmount(v.TotalBilled),
			TotalPaidFormatted:          FormatAmount(v.TotalPaid),
			OutstandingBalanceFormatted: FormatAmount(v.OutstandingBalance),
		})
	}
	meta := Meta{
		"endUserId":     client.EndUserID(),
		"totalVendors":  len(report.Vendors),
		"totalBills":    report.TotalBills,
		"totalPayments": report.TotalPayments,
		"dateRange":     dateRange,
		"summary":       listSummary("Vendor Spending Analysis", report.Vendors, vendorLine),
	}
	if len(report.Vendors) > 0 {
		table, err := vendorTable(report.Vendors)
		if err != nil {
			t.log.Warn("failed to render vendor table", zap.Error(err))
		} else {
			meta["table"] = table
		}
	}
	return success(rows, meta), nil
}
