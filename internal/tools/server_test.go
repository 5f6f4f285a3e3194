package tools_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/qbd-mcp/internal/cache"
	"github.com/leonardcser/qbd-mcp/internal/conductor"
	"github.com/leonardcser/qbd-mcp/internal/metrics"
	"github.com/leonardcser/qbd-mcp/internal/tools"
)

type recorded struct {
	method  string
	path    string
	query   string
	endUser string
	body    map[string]any
}

type upstream struct {
	mu       sync.Mutex
	requests []recorded
}

func (u *upstream) all() []recorded {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]recorded(nil), u.requests...)
}

// newUpstream serves routes keyed by "METHOD /path" and records every request.
func newUpstream(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *upstream) {
	t.Helper()
	u := &upstream{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			method:  r.Method,
			path:    r.URL.Path,
			query:   r.URL.RawQuery,
			endUser: r.Header.Get(conductor.EndUserHeader),
		}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		u.mu.Lock()
		u.requests = append(u.requests, rec)
		u.mu.Unlock()

		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, u
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestServer(t *testing.T, baseURL string, m *metrics.Metrics, disabled ...string) *server.MCPServer {
	t.Helper()
	store, err := cache.New(cache.Options{MaxSize: 100, DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	client, err := conductor.New(conductor.Options{
		BaseURL:   baseURL,
		SecretKey: "sk_test",
		EndUserID: "end_usr_default",
		Cache:     store,
	})
	require.NoError(t, err)
	return tools.NewServer(tools.Deps{
		Client:         client,
		PublishableKey: "pk_test",
		Metrics:        m,
		Disabled:       disabled,
	})
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    string          `json:"error"`
	Metadata map[string]any  `json:"metadata"`
}

func call(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, envelope) {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)

	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	require.NotEmpty(t, res.Content)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].(mcp.TextContent).Text), &env))
	assert.NotEmpty(t, env.Metadata["timestamp"])
	return res, env
}

func TestCatalogue(t *testing.T) {
	names := func(ts []server.ServerTool) []string {
		out := make([]string, 0, len(ts))
		for _, tl := range ts {
			out = append(out, tl.Tool.Name)
		}
		return out
	}

	all := names(tools.New(tools.Deps{}).Tools())
	assert.Len(t, all, 25)
	for _, want := range []string{
		"create_end_user", "list_end_users", "get_end_user", "delete_end_user",
		"create_auth_session", "check_connection_status",
		"list_accounts", "get_account", "create_account", "update_account",
		"list_bills", "get_bill", "create_bill", "update_bill",
		"list_bill_check_payments", "list_bill_credit_card_payments",
		"create_bill_check_payment", "create_bill_credit_card_payment",
		"update_payment", "delete_payment", "get_account_tax_lines",
		"generate_financial_summary", "get_vendor_spending_analysis",
		"passthrough_request", "bulk_operations",
	} {
		assert.Contains(t, all, want)
	}

	some := names(tools.New(tools.Deps{Disabled: []string{"delete_end_user", " passthrough_request"}}).Tools())
	assert.Len(t, some, 23)
	assert.NotContains(t, some, "delete_end_user")
	assert.NotContains(t, some, "passthrough_request")
}

func TestNewServerSkipsDisabledTools(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1", nil, "delete_payment")
	assert.Nil(t, s.GetTool("delete_payment"))
	assert.NotNil(t, s.GetTool("update_payment"))
}

func TestValidationErrors(t *testing.T) {
	srv, up := newUpstream(t, nil)
	s := newTestServer(t, srv.URL, nil)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		message string
	}{
		{"create_bill without lines", "create_bill",
			map[string]any{"vendorId": "V1", "transactionDate": "2024-01-15"},
			"lines: is required"},
		{"create_bill bad date", "create_bill",
			map[string]any{"vendorId": "V1", "transactionDate": "01/15/2024", "lines": []any{map[string]any{"amount": "10.00"}}},
			"transactionDate: must be a date in YYYY-MM-DD format"},
		{"create_bill bad line amount", "create_bill",
			map[string]any{"vendorId": "V1", "transactionDate": "2024-01-15", "lines": []any{map[string]any{"amount": "10.123"}}},
			"lines[0].amount:"},
		{"update_account bad revision", "update_account",
			map[string]any{"accountId": "A1", "revisionNumber": "v2"},
			"revisionNumber: must be a numeric revision number"},
		{"list_accounts limit too large", "list_accounts",
			map[string]any{"limit": 500},
			"limit: must be at most 100"},
		{"list_accounts unknown type", "list_accounts",
			map[string]any{"accountType": "cash"},
			"accountType: must be one of"},
		{"create_end_user bad email", "create_end_user",
			map[string]any{"email": "nope"},
			"email: must be a valid email address"},
		{"update_payment unknown type", "update_payment",
			map[string]any{"paymentId": "P1", "paymentType": "wire", "revisionNumber": "1"},
			"paymentType: must be one of"},
		{"create check payment with card type", "create_bill_check_payment",
			map[string]any{"paymentType": "credit_card", "payeeId": "V", "accountId": "A", "transactionDate": "2024-01-01",
				"appliedToBills": []any{map[string]any{"billId": "B", "appliedAmount": "1"}}},
			"paymentType: must be check"},
		{"passthrough bad method", "passthrough_request",
			map[string]any{"method": "PATCH", "endpoint": "/x"},
			"method: must be one of"},
		{"bulk too many operations", "bulk_operations",
			map[string]any{"operations": func() []any {
				ops := make([]any, 11)
				for i := range ops {
					ops[i] = map[string]any{"type": "create_bill", "data": map[string]any{}}
				}
				return ops
			}()},
			"operations: must contain at most 10 item(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, env := call(t, s, tt.tool, tt.args)
			assert.True(t, res.IsError, "The response should indicate an error state")
			assert.False(t, env.Success)
			assert.True(t, strings.HasPrefix(env.Error, "Validation failed: "), env.Error)
			assert.Contains(t, env.Error, tt.message)
			assert.Equal(t, "validation", env.Metadata["errorKind"])
		})
	}
	assert.Empty(t, up.all(), "invalid input must not reach the upstream")
}

func TestListAccounts(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"GET /quickbooks-desktop/accounts": jsonReply(200, `{
			"objectType": "list",
			"data": [{"id":"80000001","name":"Checking","fullName":"Checking","accountType":"bank","balance":"1234.56","isActive":true}],
			"hasMore": true,
			"nextCursor": "c2"
		}`),
	})
	s := newTestServer(t, srv.URL, nil)

	res, env := call(t, s, "list_accounts", map[string]any{
		"endUserId":    "end_usr_other",
		"nameContains": "Check",
		"isActive":     true,
	})
	require.False(t, res.IsError)
	assert.True(t, env.Success)
	assert.JSONEq(t, `[{"id":"80000001","name":"Checking","fullName":"Checking","accountType":"bank","balance":"1234.56","isActive":true}]`, string(env.Data))
	assert.Equal(t, float64(1), env.Metadata["totalCount"])
	assert.Equal(t, true, env.Metadata["hasMore"])
	assert.Equal(t, "c2", env.Metadata["nextCursor"])
	assert.Equal(t, "end_usr_other", env.Metadata["endUserId"])
	assert.Contains(t, env.Metadata["summary"], "Checking (bank) - Balance: $1,234.56 - Status: Active")

	reqs := up.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "end_usr_other", reqs[0].endUser)
	assert.Equal(t, "isActive=true&limit=50&name=Check", reqs[0].query)
}

func TestReadsAreCachedUntilAMutation(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"GET /quickbooks-desktop/bills":  jsonReply(200, `{"data":[],"hasMore":false}`),
		"POST /quickbooks-desktop/bills": jsonReply(200, `{"id":"B9"}`),
	})
	s := newTestServer(t, srv.URL, nil)

	call(t, s, "list_bills", map[string]any{"vendorName": "Acme"})
	call(t, s, "list_bills", map[string]any{"vendorName": "Acme"})
	assert.Len(t, up.all(), 1)

	res, env := call(t, s, "create_bill", map[string]any{
		"vendorId":        "V1",
		"transactionDate": "2024-01-15",
		"lines":           []any{map[string]any{"amount": "99.99", "accountId": "A1"}},
	})
	require.False(t, res.IsError, env.Error)
	assert.Equal(t, "Bill created successfully for vendor V1", env.Metadata["message"])

	call(t, s, "list_bills", map[string]any{"vendorName": "Acme"})
	reqs := up.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, "limit=50&vendor=Acme", reqs[0].query)
	assert.Equal(t, map[string]any{
		"vendorId":        "V1",
		"transactionDate": "2024-01-15",
		"lines":           []any{map[string]any{"amount": "99.99", "accountId": "A1"}},
	}, reqs[1].body)
	assert.Equal(t, http.MethodGet, reqs[2].method)
}

func TestEndUserMutationsDropCachedReads(t *testing.T) {
	var deleted atomic.Bool
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"GET /end-users":  jsonReply(200, `{"data":[],"hasMore":false}`),
		"POST /end-users": jsonReply(200, `{"id":"end_usr_new"}`),
		"GET /end-users/end_usr_x": func(w http.ResponseWriter, r *http.Request) {
			if deleted.Load() {
				jsonReply(404, `{"error":{"message":"End-user not found"}}`)(w, r)
				return
			}
			jsonReply(200, `{"id":"end_usr_x"}`)(w, r)
		},
		"DELETE /end-users/end_usr_x": func(w http.ResponseWriter, r *http.Request) {
			deleted.Store(true)
			jsonReply(200, `{"id":"end_usr_x","deleted":true}`)(w, r)
		},
	})
	s := newTestServer(t, srv.URL, nil)

	call(t, s, "list_end_users", nil)
	res, env := call(t, s, "create_end_user", map[string]any{"companyName": "Acme"})
	require.False(t, res.IsError, env.Error)
	call(t, s, "list_end_users", nil)

	_, env = call(t, s, "get_end_user", map[string]any{"endUserId": "end_usr_x"})
	assert.True(t, env.Success)
	res, env = call(t, s, "delete_end_user", map[string]any{"endUserId": "end_usr_x"})
	require.False(t, res.IsError, env.Error)

	res, env = call(t, s, "get_end_user", map[string]any{"endUserId": "end_usr_x"})
	assert.True(t, res.IsError, "a deleted end-user must not be served from cache")
	assert.Equal(t, "not_found", env.Metadata["errorKind"])

	var calls []string
	for _, r := range up.all() {
		calls = append(calls, r.method+" "+r.path)
	}
	assert.Equal(t, []string{
		"GET /end-users",
		"POST /end-users",
		"GET /end-users",
		"GET /end-users/end_usr_x",
		"DELETE /end-users/end_usr_x",
		"GET /end-users/end_usr_x",
	}, calls)
}

func TestUpstreamErrorEnvelope(t *testing.T) {
	srv, _ := newUpstream(t, map[string]http.HandlerFunc{
		"GET /quickbooks-desktop/bills/B404": jsonReply(404, `{"error":{"message":"Bill not found"}}`),
	})
	s := newTestServer(t, srv.URL, nil)

	res, env := call(t, s, "get_bill", map[string]any{"billId": "B404"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Bill not found", env.Error)
	assert.Equal(t, "not_found", env.Metadata["errorKind"])
	assert.Equal(t, float64(404), env.Metadata["statusCode"])
	assert.Equal(t, "end_usr_default", env.Metadata["endUserId"])
}

func TestCheckConnectionStatus(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]http.HandlerFunc{
			"GET /quickbooks-desktop/utilities/health-check": jsonReply(200, `{"duration":120}`),
		})
		_, env := call(t, newTestServer(t, srv.URL, nil), "check_connection_status", nil)
		assert.True(t, env.Success)
		assert.JSONEq(t, `true`, string(mustField(t, env.Data, "connected")))
	})

	t.Run("desktop unreachable", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]http.HandlerFunc{
			"GET /quickbooks-desktop/utilities/health-check": jsonReply(502, `{"error":{"message":"QuickBooks Desktop is not running"}}`),
		})
		res, env := call(t, newTestServer(t, srv.URL, nil), "check_connection_status", map[string]any{"endUserId": "end_usr_x"})
		assert.False(t, res.IsError)
		assert.True(t, env.Success)
		assert.JSONEq(t, `false`, string(mustField(t, env.Data, "connected")))
		assert.JSONEq(t, `"disconnected"`, string(mustField(t, env.Data, "status")))
		assert.JSONEq(t, `"end_usr_x"`, string(mustField(t, env.Data, "endUserId")))
	})

	t.Run("bad credentials still fail", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]http.HandlerFunc{
			"GET /quickbooks-desktop/utilities/health-check": jsonReply(401, `{"error":{"message":"Invalid API key"}}`),
		})
		res, env := call(t, newTestServer(t, srv.URL, nil), "check_connection_status", nil)
		assert.True(t, res.IsError)
		assert.Equal(t, "authentication", env.Metadata["errorKind"])
	})
}

func TestCreateAuthSessionSendsPublishableKey(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"POST /auth-sessions": jsonReply(200, `{"id":"auth_1","authFlowUrl":"https://connect.conductor.is/qbd/auth_1"}`),
	})
	s := newTestServer(t, srv.URL, nil)

	res, env := call(t, s, "create_auth_session", map[string]any{
		"endUserId":   "end_usr_new",
		"redirectUrl": "https://example.com/done",
	})
	require.False(t, res.IsError, env.Error)
	assert.Contains(t, env.Metadata["instructions"], "QuickBooks Desktop is running")

	reqs := up.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{
		"publishableKey": "pk_test",
		"endUserId":      "end_usr_new",
		"redirectUrl":    "https://example.com/done",
	}, reqs[0].body)
}

func TestPaymentRouting(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"POST /quickbooks-desktop/bill-credit-card-payments":      jsonReply(200, `{"id":"P1"}`),
		"POST /quickbooks-desktop/bill-check-payments/P2":         jsonReply(200, `{"id":"P2"}`),
		"DELETE /quickbooks-desktop/bill-credit-card-payments/P3": jsonReply(200, `{"id":"P3","deleted":true}`),
	})
	s := newTestServer(t, srv.URL, nil)

	res, env := call(t, s, "create_bill_credit_card_payment", map[string]any{
		"payeeId":         "V1",
		"accountId":       "A9",
		"transactionDate": "2024-02-01",
		"appliedToBills":  []any{map[string]any{"billId": "B1", "appliedAmount": "25.00"}},
	})
	require.False(t, res.IsError, env.Error)
	assert.Equal(t, "Credit card payment created successfully for payee V1", env.Metadata["message"])

	res, env = call(t, s, "update_payment", map[string]any{
		"paymentId": "P2", "paymentType": "check", "revisionNumber": "7", "memo": "",
	})
	require.False(t, res.IsError, env.Error)

	res, env = call(t, s, "delete_payment", map[string]any{"paymentId": "P3", "paymentType": "credit_card"})
	require.False(t, res.IsError, env.Error)
	assert.Equal(t, "Credit card payment P3 deleted successfully", env.Metadata["message"])

	reqs := up.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, "A9", reqs[0].body["accountId"])
	assert.NotContains(t, reqs[0].body, "paymentType")
	assert.Equal(t, map[string]any{"revisionNumber": "7", "memo": ""}, reqs[1].body)
	assert.Equal(t, http.MethodDelete, reqs[2].method)
}

func TestBulkOperations(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"POST /quickbooks-desktop/bills":               jsonReply(200, `{"id":"B1"}`),
		"POST /quickbooks-desktop/bills/B2":            jsonReply(409, `{"error":{"message":"Object has been modified"}}`),
		"POST /quickbooks-desktop/bill-check-payments": jsonReply(200, `{"id":"P1"}`),
	})
	s := newTestServer(t, srv.URL, nil)

	ops := []any{
		map[string]any{"type": "create_bill", "data": map[string]any{"vendorId": "V1"}},
		map[string]any{"type": "update_bill", "data": map[string]any{"billId": "B2", "revisionNumber": "1"}},
		map[string]any{"type": "create_payment", "data": map[string]any{"payeeId": "V1"}},
	}

	t.Run("stops on first failure", func(t *testing.T) {
		_, env := call(t, s, "bulk_operations", map[string]any{"operations": ops})
		assert.True(t, env.Success)
		assert.Equal(t, map[string]any{"total": float64(2), "successful": float64(1), "failed": float64(1)}, env.Metadata["summary"])

		var results []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &results))
		require.Len(t, results, 2)
		assert.Contains(t, results[1]["error"], "revision number")
	})

	t.Run("continues on error", func(t *testing.T) {
		_, env := call(t, s, "bulk_operations", map[string]any{"operations": ops, "continueOnError": true})
		assert.Equal(t, "Bulk operations completed: 2 successful, 1 failed", env.Metadata["message"])
	})

	var paths []string
	for _, r := range up.all() {
		paths = append(paths, r.path)
	}
	assert.Equal(t, []string{
		"/quickbooks-desktop/bills",
		"/quickbooks-desktop/bills/B2",
		"/quickbooks-desktop/bills",
		"/quickbooks-desktop/bills/B2",
		"/quickbooks-desktop/bill-check-payments",
	}, paths)
}

func TestPassthroughRequest(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"GET /quickbooks-desktop/vendors":       jsonReply(200, `{"data":[{"id":"V1"}],"hasMore":false}`),
		"POST /quickbooks-desktop/vendors/V1":   jsonReply(200, `{"id":"V1","name":"Renamed"}`),
		"DELETE /quickbooks-desktop/vendors/V1": jsonReply(200, `{}`),
	})
	s := newTestServer(t, srv.URL, nil)

	for i := 0; i < 2; i++ {
		_, env := call(t, s, "passthrough_request", map[string]any{
			"method":   "GET",
			"endpoint": "/quickbooks-desktop/vendors",
			"params":   map[string]any{"name": "Acme"},
		})
		assert.True(t, env.Success)
	}
	_, env := call(t, s, "passthrough_request", map[string]any{
		"method":   "PUT",
		"endpoint": "/quickbooks-desktop/vendors/V1",
		"data":     map[string]any{"name": "Renamed", "revisionNumber": "3"},
	})
	assert.Equal(t, "PUT", env.Metadata["method"])

	_, env = call(t, s, "passthrough_request", map[string]any{"method": "DELETE", "endpoint": "/quickbooks-desktop/vendors/V1"})
	assert.JSONEq(t, `{"success":true,"message":"Resource deleted successfully"}`, string(env.Data))

	reqs := up.all()
	require.Len(t, reqs, 4, "passthrough reads are not cached")
	assert.Equal(t, "name=Acme", reqs[0].query)
	assert.Equal(t, http.MethodPost, reqs[2].method)
	assert.Equal(t, "Renamed", reqs[2].body["name"])
}

func TestFinancialSummaryTool(t *testing.T) {
	srv, up := newUpstream(t, map[string]http.HandlerFunc{
		"GET /quickbooks-desktop/accounts": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("cursor") == "" {
				jsonReply(200, `{"data":[{"id":"1","accountType":"bank","balance":"1000.10","isActive":true}],"hasMore":true,"nextCursor":"p2"}`)(w, r)
				return
			}
			jsonReply(200, `{"data":[{"id":"2","accountType":"bank","balance":"234.46","isActive":false}],"hasMore":false}`)(w, r)
		},
	})
	s := newTestServer(t, srv.URL, nil)

	res, env := call(t, s, "generate_financial_summary", map[string]any{
		"accountTypes":    []any{"bank"},
		"includeInactive": true,
		"startDate":       "2024-01-01",
	})
	require.False(t, res.IsError, env.Error)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, float64(2), data["totalAccounts"])
	assert.Equal(t, "$1,234.56", data["totalBalanceFormatted"])
	assert.Equal(t, map[string]any{"bank": "$1,234.56"}, data["balancesByTypeFormatted"])
	assert.Equal(t, map[string]any{"startDate": "2024-01-01"}, data["dateRange"])
	assert.Equal(t, "Financial summary generated for 2 accounts", env.Metadata["message"])

	reqs := up.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "accountType=bank&includeInactive=true", reqs[0].query)
	assert.Equal(t, "accountType=bank&cursor=p2&includeInactive=true", reqs[1].query)
}

func TestVendorSpendingAnalysisTool(t *testing.T) {
	srv, _ := newUpstream(t, map[string]http.HandlerFunc{
		"GET /quickbooks-desktop/bills": jsonReply(200, `{"data":[
			{"id":"b1","vendor":{"id":"V","fullName":"Acme"},"totalAmount":"100","isPaid":false,"openBalance":"40"},
			{"id":"b2","vendor":{"id":"W","fullName":"Widgets"},"totalAmount":"1500","isPaid":true}
		],"hasMore":false}`),
		"GET /quickbooks-desktop/bill-check-payments":       jsonReply(200, `{"data":[{"id":"p1","payee":{"id":"V"},"totalAmount":"60"}],"hasMore":false}`),
		"GET /quickbooks-desktop/bill-credit-card-payments": jsonReply(200, `{"data":[],"hasMore":false}`),
	})
	s := newTestServer(t, srv.URL, nil)

	res, env := call(t, s, "get_vendor_spending_analysis", nil)
	require.False(t, res.IsError, env.Error)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Widgets", rows[0]["vendorName"])
	assert.Equal(t, "$1,500.00", rows[0]["totalBilledFormatted"])
	assert.Equal(t, "Acme", rows[1]["vendorName"])
	assert.Equal(t, "$60.00", rows[1]["totalPaidFormatted"])
	assert.Equal(t, "$40.00", rows[1]["outstandingBalanceFormatted"])

	assert.Equal(t, float64(2), env.Metadata["totalVendors"])
	assert.Equal(t, float64(1), env.Metadata["totalPayments"])
	assert.Contains(t, env.Metadata["summary"], "1. Widgets: $1,500.00 total (1 bills, 0 payments)")
	assert.Contains(t, env.Metadata["table"], "Acme")
}

func TestToolCallsAreCounted(t *testing.T) {
	srv, _ := newUpstream(t, map[string]http.HandlerFunc{
		"GET /end-users": jsonReply(200, `{"data":[],"hasMore":false}`),
	})
	m := metrics.New()
	s := newTestServer(t, srv.URL, m)

	call(t, s, "list_end_users", nil)
	call(t, s, "get_end_user", map[string]any{})

	body := scrape(t, m)
	assert.Contains(t, body, `qbd_tool_calls_total{outcome="success",tool="list_end_users"} 1`)
	assert.Contains(t, body, `qbd_tool_calls_total{outcome="error",tool="get_end_user"} 1`)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func mustField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	v, ok := m[key]
	require.True(t, ok, "missing field %s", key)
	return v
}
