// Package accounting holds the QuickBooks Desktop record shapes used by the
// server, the endpoint paths they live under, and the two compound
// operations built on the client: the batch runner and the report
// aggregators.
package accounting

import (
	"net/url"
	"strings"
)

// Endpoint paths relative to the Conductor API base URL.
const (
	EndpointEndUsers               = "/end-users"
	EndpointAuthSessions           = "/auth-sessions"
	EndpointHealthCheck            = "/quickbooks-desktop/utilities/health-check"
	EndpointAccounts               = "/quickbooks-desktop/accounts"
	EndpointAccountTaxLines        = "/quickbooks-desktop/account-tax-lines"
	EndpointBills                  = "/quickbooks-desktop/bills"
	EndpointBillCheckPayments      = "/quickbooks-desktop/bill-check-payments"
	EndpointBillCreditCardPayments = "/quickbooks-desktop/bill-credit-card-payments"
)

// Payment types accepted by the payment operations.
const (
	PaymentTypeCheck      = "check"
	PaymentTypeCreditCard = "credit_card"
)

// AccountTypes lists the QuickBooks account types the server accepts.
var AccountTypes = []string{
	"bank",
	"accounts_payable",
	"accounts_receivable",
	"other_current_asset",
	"fixed_asset",
	"other_asset",
	"credit_card",
	"other_current_liability",
	"long_term_liability",
	"equity",
	"income",
	"cost_of_goods_sold",
	"expense",
	"other_income",
	"other_expense",
}

// PaymentEndpoint returns the collection path for a payment type. Anything
// other than "check" is treated as a credit card payment.
func PaymentEndpoint(paymentType string) string {
	if paymentType == "" || paymentType == PaymentTypeCheck {
		return EndpointBillCheckPayments
	}
	return EndpointBillCreditCardPayments
}

// ItemPath joins a collection path and a record id, escaping the id as a
// single path segment.
func ItemPath(collection, id string) string {
	return strings.TrimRight(collection, "/") + "/" + url.PathEscape(id)
}

// Ref is a reference to another record.
type Ref struct {
	ID       string `json:"id"`
	FullName string `json:"fullName,omitempty"`
}

// EndUser is a Conductor end-user (one QuickBooks company file owner).
type EndUser struct {
	ID          string `json:"id"`
	SourceID    string `json:"sourceId,omitempty"`
	Email       string `json:"email,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// Account is a chart-of-accounts entry. Balances arrive as decimal strings.
type Account struct {
	ID             string `json:"id"`
	RevisionNumber string `json:"revisionNumber,omitempty"`
	Name           string `json:"name"`
	FullName       string `json:"fullName,omitempty"`
	IsActive       bool   `json:"isActive"`
	Parent         *Ref   `json:"parent,omitempty"`
	AccountType    string `json:"accountType"`
	AccountNumber  string `json:"accountNumber,omitempty"`
	Description    string `json:"description,omitempty"`
	Balance        string `json:"balance,omitempty"`
	TotalBalance   string `json:"totalBalance,omitempty"`
}

// BillLine is one line of a bill.
type BillLine struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Account     *Ref   `json:"account,omitempty"`
	Item        *Ref   `json:"item,omitempty"`
}

// Bill is a vendor bill.
type Bill struct {
	ID              string     `json:"id"`
	RevisionNumber  string     `json:"revisionNumber,omitempty"`
	RefNumber       string     `json:"refNumber,omitempty"`
	Vendor          *Ref       `json:"vendor,omitempty"`
	TransactionDate string     `json:"transactionDate,omitempty"`
	DueDate         string     `json:"dueDate,omitempty"`
	Memo            string     `json:"memo,omitempty"`
	IsPaid          bool       `json:"isPaid"`
	OpenBalance     string     `json:"openBalance,omitempty"`
	TotalAmount     string     `json:"totalAmount,omitempty"`
	Lines           []BillLine `json:"lines,omitempty"`
}

// AppliedBill is the portion of a payment applied to one bill.
type AppliedBill struct {
	Bill          Ref    `json:"bill"`
	AppliedAmount string `json:"appliedAmount"`
}

// BillPayment is a bill check payment or bill credit card payment.
type BillPayment struct {
	ID              string        `json:"id"`
	ObjectType      string        `json:"objectType,omitempty"`
	RevisionNumber  string        `json:"revisionNumber,omitempty"`
	RefNumber       string        `json:"refNumber,omitempty"`
	TransactionDate string        `json:"transactionDate,omitempty"`
	Payee           *Ref          `json:"payee,omitempty"`
	Account         *Ref          `json:"account,omitempty"`
	TotalAmount     string        `json:"totalAmount,omitempty"`
	Memo            string        `json:"memo,omitempty"`
	AppliedToBills  []AppliedBill `json:"appliedToBills,omitempty"`
}
