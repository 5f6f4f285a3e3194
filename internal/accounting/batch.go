package accounting

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/leonardcser/qbd-mcp/internal/apierr"
)

// MaxBatchOperations bounds a single batch. Callers enforce it.
const MaxBatchOperations = 10

// OperationType names one kind of batched mutation.
type OperationType string

const (
	OpCreateBill    OperationType = "create_bill"
	OpUpdateBill    OperationType = "update_bill"
	OpCreatePayment OperationType = "create_payment"
	OpUpdatePayment OperationType = "update_payment"
)

// Operation is one mutation of a batch. Data is the request body; update
// operations carry the target id (billId or paymentId) inside it, and
// payment operations may carry paymentType ("check" by default).
type Operation struct {
	Type OperationType  `json:"type"`
	Data map[string]any `json:"data"`
}

// BatchResult is the outcome of one operation, in input order.
type BatchResult struct {
	Operation Operation       `json:"operation"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BatchSummary counts outcomes. Total counts attempted operations only.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchReport is what Run returns.
type BatchReport struct {
	Results []BatchResult `json:"results"`
	Summary BatchSummary  `json:"summary"`
}

// Poster is the part of the upstream client the batch runner needs.
type Poster interface {
	Post(ctx context.Context, endpoint string, body any, invalidate bool) (json.RawMessage, error)
}

// BatchRunner executes operations one at a time, in order.
type BatchRunner struct {
	client Poster
	log    *zap.Logger
}

// NewBatchRunner returns a runner posting through client.
func NewBatchRunner(client Poster, log *zap.Logger) *BatchRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchRunner{client: client, log: log.Named("batch")}
}

// Run executes ops sequentially. Without continueOnError it stops after the
// first failure and the remaining operations are neither attempted nor
// reported. Run itself never fails; every outcome is in the report.
func (r *BatchRunner) Run(ctx context.Context, ops []Operation, continueOnError bool) BatchReport {
	report := BatchReport{Results: make([]BatchResult, 0, len(ops))}
	for i, op := range ops {
		res := BatchResult{Operation: op}
		out, err := r.execute(ctx, op)
		if err != nil {
			res.Error = err.Error()
			if e, ok := apierr.As(err); ok {
				res.Error = e.Message
			}
			r.log.Warn("batch operation failed",
				zap.Int("index", i), zap.String("type", string(op.Type)), zap.Error(err))
		} else {
			res.Success = true
			res.Result = out
			r.log.Debug("batch operation succeeded", zap.Int("index", i), zap.String("type", string(op.Type)))
		}
		report.Results = append(report.Results, res)
		if res.Success {
			report.Summary.Successful++
		} else {
			report.Summary.Failed++
		}
		if !res.Success && !continueOnError {
			break
		}
	}
	report.Summary.Total = len(report.Results)
	return report
}

func (r *BatchRunner) execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch op.Type {
	case OpCreateBill:
		return r.client.Post(ctx, EndpointBills, without(op.Data), true)
	case OpUpdateBill:
		id, err := requireID(op.Data, "billId")
		if err != nil {
			return nil, err
		}
		return r.client.Post(ctx, ItemPath(EndpointBills, id), without(op.Data, "billId"), true)
	case OpCreatePayment:
		endpoint := PaymentEndpoint(stringField(op.Data, "paymentType"))
		return r.client.Post(ctx, endpoint, without(op.Data, "paymentType"), true)
	case OpUpdatePayment:
		id, err := requireID(op.Data, "paymentId")
		if err != nil {
			return nil, err
		}
		endpoint := ItemPath(PaymentEndpoint(stringField(op.Data, "paymentType")), id)
		return r.client.Post(ctx, endpoint, without(op.Data, "paymentId", "paymentType"), true)
	default:
		return nil, apierr.Validation(fmt.Sprintf("Unsupported operation type: %s", op.Type), nil)
	}
}

// without copies data minus keys; the caller's map is left untouched.
func without(data map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func requireID(data map[string]any, key string) (string, error) {
	id := stringField(data, key)
	if id == "" {
		return "", apierr.Validation(key+" is required", map[string]any{"field": key})
	}
	return id, nil
}
