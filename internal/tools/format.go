package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/apierr"
)

// Envelope is the JSON document every tool returns.
type Envelope struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// Meta is a convenience alias for envelope metadata.
type Meta = map[string]any

func success(data any, meta Meta) *Envelope {
	return &Envelope{Success: true, Data: data, Metadata: stamp(meta)}
}

func paginated(data any, count int, hasMore bool, nextCursor, endUserID string) *Envelope {
	meta := Meta{
		"totalCount": count,
		"hasMore":    hasMore,
		"endUserId":  endUserID,
	}
	if nextCursor != "" {
		meta["nextCursor"] = nextCursor
	}
	return success(data, meta)
}

func failure(e *apierr.Error, endUserID string) *Envelope {
	meta := Meta{"errorKind": string(e.Kind)}
	if endUserID != "" {
		meta["endUserId"] = endUserID
	}
	if e.StatusCode != 0 {
		meta["statusCode"] = e.StatusCode
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Details != nil {
		meta["details"] = e.Details
	}
	return &Envelope{Error: e.Message, Metadata: stamp(meta)}
}

func stamp(meta Meta) Meta {
	if meta == nil {
		meta = Meta{}
	}
	meta["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return meta
}

func render(env *Envelope) string {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		// Data that cannot be encoded is reported instead of dropped.
		b, _ = json.MarshalIndent(&Envelope{
			Error:    "failed to encode response: " + err.Error(),
			Metadata: stamp(Meta{"errorKind": string(apierr.KindGeneric)}),
		}, "", "  ")
	}
	return string(b)
}

// FormatAmount renders d as US dollars, e.g. "$1,234.56" or "-$12.00".
func FormatAmount(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	p := message.NewPrinter(language.AmericanEnglish)
	return sign + "$" + p.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

func formatAmountString(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		d = decimal.Zero
	}
	return FormatAmount(d)
}

// formatDate turns YYYY-MM-DD into "January 2, 2006"; anything else is
// returned unchanged.
func formatDate(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return t.Format("January 2, 2006")
}

func accountSummary(a accounting.Account) string {
	status := "Inactive"
	if a.IsActive {
		status = "Active"
	}
	name := a.FullName
	if name == "" {
		name = a.Name
	}
	return fmt.Sprintf("%s (%s) - Balance: %s - Status: %s",
		name, a.AccountType, formatAmountString(a.Balance), status)
}

func billSummary(b accounting.Bill) string {
	ref := b.RefNumber
	if ref == "" {
		ref = b.ID
	}
	vendor := "Unknown"
	if b.Vendor != nil && b.Vendor.FullName != "" {
		vendor = b.Vendor.FullName
	}
	status := "Unpaid"
	if b.IsPaid {
		status = "Paid"
	}
	return fmt.Sprintf("Bill %s from %s - %s - %s - %s",
		ref, vendor, formatAmountString(b.TotalAmount), formatDate(b.TransactionDate), status)
}

func paymentSummary(p accounting.BillPayment) string {
	method := "Credit Card"
	if p.ObjectType == "qbd_bill_check_payment" {
		method = "Check"
	}
	ref := p.RefNumber
	if ref == "" {
		ref = p.ID
	}
	payee := "Unknown"
	if p.Payee != nil && p.Payee.FullName != "" {
		payee = p.Payee.FullName
	}
	return fmt.Sprintf("%s Payment %s to %s - %s - %s",
		method, ref, payee, formatAmountString(p.TotalAmount), formatDate(p.TransactionDate))
}

// listSummary numbers one line per item under a title.
func listSummary[T any](title string, items []T, line func(T) string) string {
	if len(items) == 0 {
		return fmt.Sprintf("No %s found.", strings.ToLower(title))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d found):", title, len(items))
	for i, it := range items {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, line(it))
	}
	return sb.String()
}

// summarize decodes raw records as T and renders them with listSummary.
// Records that do not decode produce no summary.
func summarize[T any](title string, raw []json.RawMessage, line func(T) string) string {
	items := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return ""
		}
		items = append(items, v)
	}
	return listSummary(title, items, line)
}

func vendorLine(v accounting.VendorSpending) string {
	return fmt.Sprintf("%s: %s total (%d bills, %d payments)",
		v.VendorName, FormatAmount(v.TotalBilled), v.BillCount, v.PaymentCount)
}

// vendorTable renders the spending report as a text table.
func vendorTable(vendors []accounting.VendorSpending) (string, error) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.Header([]string{"Vendor", "Billed", "Paid", "Outstanding", "Bills", "Payments"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(vendors))
	for _, v := range vendors {
		data = append(data, []string{
			v.VendorName,
			FormatAmount(v.TotalBilled),
			FormatAmount(v.TotalPaid),
			FormatAmount(v.OutstandingBalance),
			strconv.Itoa(v.BillCount),
			strconv.Itoa(v.PaymentCount),
		})
	}
	if err := table.Bulk(data); err != nil {
		return "", err
	}
	if err := table.Render(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
