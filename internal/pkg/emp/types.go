package emp

import (
	"fmt"
	"strings"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
)

// Gateway transaction statuses as reported by EMP.
const (
	GatewayStatusApproved      = "approved"
	GatewayStatusDeclined      = "declined"
	GatewayStatusError         = "error"
	GatewayStatusVoided        = "voided"
	GatewayStatusChargebacked  = "chargebacked"
	GatewayStatusChargebackRev = "chargeback_reversed"
	GatewayStatusPendingAsync  = "pending_async"
	GatewayStatusPending       = "pending"
	GatewayStatusRefunded      = "refunded"
	GatewayStatusRepresented   = "represented"
	GatewayStatusPreArbitrated = "pre_arbitrated"
)

// ErrKind classifies client failures so callers can tally them without
// aborting a run.
type ErrKind string

const (
	ErrKindNetwork   ErrKind = "network"
	ErrKindMalformed ErrKind = "malformed"
	ErrKindGateway   ErrKind = "gateway"
)

// ClientError is a non-fatal failure value from a single gateway call.
type ClientError struct {
	Kind       ErrKind
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("emp %s error (http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("emp %s error: %s", e.Kind, e.Message)
}

func newClientError(kind ErrKind, statusCode int, format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: kind, StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

// TransactionResult is one gateway ledger entry normalized for local use.
type TransactionResult struct {
	UniqueID             string
	TransactionType      string
	RawStatus            string
	AmountCents          int64
	Currency             string
	Timestamp            string
	ChargebackReasonCode string
}

// LocalStatus maps the gateway status onto the billing attempt state
// machine.
func (r *TransactionResult) LocalStatus() string {
	return MapStatus(r.RawStatus)
}

// MapStatus translates an EMP status into a local attempt status. Statuses
// the state machine does not track (async in-flight, refunds after
// settlement) stay pending locally so a later run can settle them.
func MapStatus(gatewayStatus string) string {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case GatewayStatusApproved, GatewayStatusChargebackRev, GatewayStatusRepresented:
		return models.AttemptStatusApproved
	case GatewayStatusDeclined:
		return models.AttemptStatusDeclined
	case GatewayStatusError:
		return models.AttemptStatusError
	case GatewayStatusVoided:
		return models.AttemptStatusVoided
	case GatewayStatusChargebacked, GatewayStatusPreArbitrated:
		return models.AttemptStatusChargebacked
	default:
		return models.AttemptStatusPending
	}
}

// ByDatePage is one page of the gateway's dated transaction history.
type ByDatePage struct {
	Records    []TransactionResult
	Page       int
	PerPage    int
	TotalCount int
}

// HasMore reports whether another page follows this one.
func (p *ByDatePage) HasMore() bool {
	if p.PerPage <= 0 {
		return false
	}
	return p.Page*p.PerPage < p.TotalCount
}
