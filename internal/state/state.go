// Package state wires together the shared, cheaply cloneable handle that
// both the DNS server and the HTTP relay hold: the zone authority, the
// store, and whichever optional adapters (cross-node cache invalidation,
// anycast, the publish audit log) are enabled.
package state

import (
	"context"

	"github.com/pkarrdns/pkarrdns/internal/store"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/pkarrdns/pkarrdns/internal/zone"
)

// PublishOutcome labels what happened to a publish request in the audit log.
type PublishOutcome string

const (
	PublishOutcomeUpdate PublishOutcome = "update"
	PublishOutcomeNoop   PublishOutcome = "noop"
	PublishOutcomeError  PublishOutcome = "error"
)

// Invalidator is implemented by internal/xcache's cross-node broadcaster.
type Invalidator interface {
	Invalidate(key string) error
}

// AnycastManager is implemented by internal/anycast's BGP-backed manager.
type AnycastManager interface {
	Announce(ctx context.Context) error
	Withdraw(ctx context.Context) error
}

// Auditor is implemented by internal/audit's durable publish-event sink.
type Auditor interface {
	RecordPublish(ctx context.Context, key zkey.PublicKey, timestampMicros uint64, outcome string) error
}

// AppState is the shared handle every listener and handler holds a copy
// of. It carries pointers only -- copying an AppState is cheap and safe
// for concurrent use.
type AppState struct {
	Authority   *zone.NodeAuthority
	Catalog     *zone.Catalog
	Store       *store.SignedPacketStore
	Invalidator Invalidator    // nil unless [xcache] is enabled
	Anycast     AnycastManager // nil unless [anycast] is enabled
	Audit       Auditor        // nil unless [audit_log] is enabled
}

// New builds an AppState from its required components; optional adapters
// are attached afterward by the caller (cmd/pkarrdnsd's wiring code).
func New(authority *zone.NodeAuthority, catalog *zone.Catalog, st *store.SignedPacketStore) *AppState {
	return &AppState{Authority: authority, Catalog: catalog, Store: st}
}

// AuditPublish records a publish event if an audit sink is attached. Audit
// failures never affect the request outcome.
func (s *AppState) AuditPublish(ctx context.Context, key zkey.PublicKey, timestampMicros uint64, outcome PublishOutcome) {
	if s.Audit == nil {
		return
	}
	_ = s.Audit.RecordPublish(ctx, key, timestampMicros, string(outcome))
}
