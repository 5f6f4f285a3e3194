package accounting

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leonardcser/qbd-mcp/internal/conductor"
)

// UnknownVendor names bills that carry no vendor reference.
const UnknownVendor = "Unknown Vendor"

// Drainer is the part of the upstream client the reports need.
type Drainer interface {
	GetAllPages(ctx context.Context, endpoint string, params conductor.Params, useCache bool) ([]json.RawMessage, error)
}

// Reporter aggregates fully drained collections into reports.
type Reporter struct {
	src Drainer
	log *zap.Logger
}

// NewReporter returns a Reporter reading through src.
func NewReporter(src Drainer, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{src: src, log: log.Named("reports")}
}

// DateRange echoes the requested reporting window.
type DateRange struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// SummaryOptions filters FinancialSummary.
type SummaryOptions struct {
	AccountTypes    []string
	IncludeInactive bool
	DateRange       DateRange
}

// FinancialSummary aggregates account balances.
type FinancialSummary struct {
	TotalAccounts    int                        `json:"totalAccounts"`
	AccountsByType   map[string]int             `json:"accountsByType"`
	BalancesByType   map[string]decimal.Decimal `json:"balancesByType"`
	TotalBalance     decimal.Decimal            `json:"totalBalance"`
	ActiveAccounts   int                        `json:"activeAccounts"`
	InactiveAccounts int                        `json:"inactiveAccounts"`
	DateRange        DateRange                  `json:"dateRange"`
}

// FinancialSummary drains the accounts collection and totals balances by
// account type. Any page failure fails the report.
func (r *Reporter) FinancialSummary(ctx context.Context, opts SummaryOptions) (*FinancialSummary, error) {
	params := conductor.Params{"includeInactive": opts.IncludeInactive}
	if len(opts.AccountTypes) > 0 {
		params["accountType"] = opts.AccountTypes
	}
	raw, err := r.src.GetAllPages(ctx, EndpointAccounts, params, true)
	if err != nil {
		return nil, err
	}
	accounts, err := conductor.Decode[Account](raw)
	if err != nil {
		return nil, err
	}

	s := &FinancialSummary{
		TotalAccounts:  len(accounts),
		AccountsByType: make(map[string]int),
		BalancesByType: make(map[string]decimal.Decimal),
		TotalBalance:   decimal.Zero,
		DateRange:      opts.DateRange,
	}
	for _, a := range accounts {
		balance := r.amount(a.Balance, "account", a.ID)
		s.AccountsByType[a.AccountType]++
		s.BalancesByType[a.AccountType] = s.BalancesByType[a.AccountType].Add(balance)
		s.TotalBalance = s.TotalBalance.Add(balance)
		if a.IsActive {
			s.ActiveAccounts++
		} else {
			s.InactiveAccounts++
		}
	}
	return s, nil
}

// SpendingOptions filters VendorSpending.
type SpendingOptions struct {
	VendorID        string
	IncludePayments bool
	DateRange       DateRange
}

// VendorSpending is the per-vendor row of a spending report.
type VendorSpending struct {
	VendorID           string          `json:"vendorId"`
	VendorName         string          `json:"vendorName"`
	TotalBilled        decimal.Decimal `json:"totalBilled"`
	TotalPaid          decimal.Decimal `json:"totalPaid"`
	BillCount          int             `json:"billCount"`
	PaymentCount       int             `json:"paymentCount"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
}

// SpendingReport lists vendors by descending total billed.
type SpendingReport struct {
	Vendors       []VendorSpending `json:"vendors"`
	TotalBills    int              `json:"totalBills"`
	TotalPayments int              `json:"totalPayments"`
}

// VendorSpending drains bills and, when requested, both payment collections
// concurrently, then groups them by vendor. Vendors appear only through
// bills; payments to vendors without bills in range are ignored.
func (r *Reporter) VendorSpending(ctx context.Context, opts SpendingOptions) (*SpendingReport, error) {
	billParams := conductor.Params{}
	paymentParams := conductor.Params{}
	billParams.Set("vendorId", opts.VendorID)
	paymentParams.Set("payeeId", opts.VendorID)
	for _, p := range []conductor.Params{billParams, paymentParams} {
		p.Set("transactionDateFrom", opts.DateRange.StartDate)
		p.Set("transactionDateTo", opts.DateRange.EndDate)
	}

	var bills, checks, cards []json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bills, err = r.src.GetAllPages(gctx, EndpointBills, billParams, true)
		return err
	})
	if opts.IncludePayments {
		g.Go(func() (err error) {
			checks, err = r.src.GetAllPages(gctx, EndpointBillCheckPayments, paymentParams.Clone(), true)
			return err
		})
		g.Go(func() (err error) {
			cards, err = r.src.GetAllPages(gctx, EndpointBillCreditCardPayments, paymentParams.Clone(), true)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	billRecs, err := conductor.Decode[Bill](bills)
	if err != nil {
		return nil, err
	}
	payments, err := conductor.Decode[BillPayment](append(checks, cards...))
	if err != nil {
		return nil, err
	}

	byVendor := make(map[string]*VendorSpending)
	var order []string
	for _, b := range billRecs {
		id, name := "", UnknownVendor
		if b.Vendor != nil {
			id = b.Vendor.ID
			if b.Vendor.FullName != "" {
				name = b.Vendor.FullName
			}
		}
		v, ok := byVendor[id]
		if !ok {
			v = &VendorSpending{
				VendorID:           id,
				VendorName:         name,
				TotalBilled:        decimal.Zero,
				TotalPaid:          decimal.Zero,
				OutstandingBalance: decimal.Zero,
			}
			byVendor[id] = v
			order = append(order, id)
		}
		v.TotalBilled = v.TotalBilled.Add(r.amount(b.TotalAmount, "bill", b.ID))
		v.BillCount++
		if !b.IsPaid {
			v.OutstandingBalance = v.OutstandingBalance.Add(r.amount(b.OpenBalance, "bill", b.ID))
		}
	}
	for _, p := range payments {
		if p.Payee == nil {
			continue
		}
		v, ok := byVendor[p.Payee.ID]
		if !ok {
			continue
		}
		v.TotalPaid = v.TotalPaid.Add(r.amount(p.TotalAmount, "payment", p.ID))
		v.PaymentCount++
	}

	report := &SpendingReport{
		Vendors:       make([]VendorSpending, 0, len(order)),
		TotalBills:    len(billRecs),
		TotalPayments: len(payments),
	}
	for _, id := range order {
		report.Vendors = append(report.Vendors, *byVendor[id])
	}
	sort.SliceStable(report.Vendors, func(i, j int) bool {
		return report.Vendors[i].TotalBilled.GreaterThan(report.Vendors[j].TotalBilled)
	})
	return report, nil
}

// amount parses an upstream decimal string. Missing amounts count as zero;
// malformed ones are logged and counted as zero.
func (r *Reporter) amount(s, kind, id string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		r.log.Warn("ignoring malformed amount", zap.String("record", kind), zap.String("id", id), zap.String("value", s))
		return decimal.Zero
	}
	return d
}
