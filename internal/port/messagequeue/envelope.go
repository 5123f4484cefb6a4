package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vendora/vendora/internal/domain/tenant"
)

// ErrMissingStamp indicates a message that arrived without a tenant stamp.
// Such messages are refused outright: there is no default tenant for async
// work, and re-deriving the tenant from ambient state is impossible in a
// worker.
var ErrMissingStamp = errors.New("message missing tenant stamp")

// Envelope wraps every message crossing the async boundary. The tenant
// resolved during the producing unit of work travels with the message as
// an explicit stamp; the consumer re-establishes its TenantContext from it
// before doing anything else.
type Envelope struct {
	TenantID      string          `json:"tenant_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	Body          json.RawMessage `json:"body"`
}

// Seal marshals body into an Envelope stamped with tid and the given
// correlation/causation IDs.
func Seal(tid tenant.ID, correlationID, causationID string, body any) ([]byte, error) {
	if tid.IsZero() {
		return nil, ErrMissingStamp
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("seal envelope body: %w", err)
	}
	data, err := json.Marshal(Envelope{
		TenantID:      tid.String(),
		CorrelationID: correlationID,
		CausationID:   causationID,
		Body:          raw,
	})
	if err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	return data, nil
}

// Open parses data as an Envelope and validates its tenant stamp. It fails
// closed: a missing or malformed stamp is an error, never a fall-through.
func Open(data []byte) (*Envelope, tenant.ID, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, tenant.ID{}, fmt.Errorf("open envelope: %w", err)
	}
	if env.TenantID == "" {
		return nil, tenant.ID{}, ErrMissingStamp
	}
	tid, err := tenant.ParseID(env.TenantID)
	if err != nil {
		return nil, tenant.ID{}, fmt.Errorf("open envelope: %w", err)
	}
	return &env, tid, nil
}
