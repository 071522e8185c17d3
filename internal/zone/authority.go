package zone

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/log"
	"github.com/pkarrdns/pkarrdns/internal/metrics"
	"github.com/pkarrdns/pkarrdns/internal/perr"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
)

var logger = log.PrefixedLog("zone")

// PacketSource records where an upserted signed packet came from. Mainline
// exists as a typed seam for a future DHT-backed resolver; this server
// never originates PacketSourceMainline itself.
type PacketSource int

const (
	PacketSourcePkarrPublish PacketSource = iota
	PacketSourceMainline
)

// PkarrZone is the in-memory projection of one accepted SignedPacket.
type PkarrZone = pkarr.ProjectedZone

// Store is the subset of *store.SignedPacketStore the authority depends on,
// kept as an interface so tests can substitute a fake.
type Store interface {
	Upsert(ctx context.Context, packet *pkarr.SignedPacket) (bool, error)
	Get(ctx context.Context, key zkey.PublicKey) (*pkarr.SignedPacket, error)
	Iter(ctx context.Context, fn func(*pkarr.SignedPacket, error) error) error
}

// AuthLookup is the result of a NodeAuthority.Lookup call.
type AuthLookup struct {
	Records []dnswire.Record
	Rcode   dnswire.Rcode
}

// NodeAuthority is the central aggregate: a StaticZone merged with a
// potentially unbounded set of per-key PkarrZones, backed by a durable
// Store for restart persistence and write-through on accept.
type NodeAuthority struct {
	store  Store
	static *StaticZone

	primaryOrigin dnswire.Name
	allOrigins    []dnswire.Name
	serial        uint32

	mu    sync.RWMutex
	zones *lru.Cache // PublicKey(32 bytes as string) -> *PkarrZone
}

// Config collects NodeAuthority's construction parameters.
type Config struct {
	Store            Store
	Static           *StaticZone
	PrimaryOrigin    dnswire.Name
	AdditionalOrigins []dnswire.Name
	Serial           uint32
	MaxZones         int // bounded LRU capacity for the zones map
}

// New builds a NodeAuthority, rebuilding the in-memory zones map from the
// store's current contents. Rows that fail to re-decode are skipped with
// their error surfaced through onDecodeError (nil is fine; used by callers
// that want to log).
func New(cfg Config, onDecodeError func(error)) (*NodeAuthority, error) {
	maxZones := cfg.MaxZones
	if maxZones <= 0 {
		maxZones = 100_000
	}
	cache, err := lru.NewWithEvict(maxZones, func(key interface{}, value interface{}) {
		metrics.ZonesLRUEvictions.Inc()
	})
	if err != nil {
		return nil, perr.New(perr.ConfigError, "zone.New", err)
	}

	// AllOrigins()[0] must be the primary origin.
	all := append([]dnswire.Name{cfg.PrimaryOrigin}, cfg.AdditionalOrigins...)

	a := &NodeAuthority{
		store:         cfg.Store,
		static:        cfg.Static,
		primaryOrigin: cfg.PrimaryOrigin,
		allOrigins:    all,
		serial:        cfg.Serial,
		zones:         cache,
	}

	err = cfg.Store.Iter(context.Background(), func(sp *pkarr.SignedPacket, decErr error) error {
		if decErr != nil {
			if onDecodeError != nil {
				onDecodeError(decErr)
			}
			return nil
		}
		a.zones.Add(string(sp.PublicKey.Bytes()), pkarr.ProjectZone(sp))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Origin returns the primary origin.
func (a *NodeAuthority) Origin() dnswire.Name { return a.primaryOrigin }

// AllOrigins returns every configured origin with the primary origin
// first, per the data model's invariant all_origins[0] == primary_origin.
func (a *NodeAuthority) AllOrigins() []dnswire.Name {
	out := make([]dnswire.Name, len(a.allOrigins))
	copy(out, a.allOrigins)
	return out
}

// Serial returns the authority-wide serial every synthesized RecordSet carries.
func (a *NodeAuthority) Serial() uint32 { return a.serial }

// Upsert implements the accept policy: re-verify, project, compare-and-swap
// under the write lock, write-through to the store, bump metrics.
func (a *NodeAuthority) Upsert(ctx context.Context, body []byte, key zkey.PublicKey, _ PacketSource) (updated bool, err error) {
	defer func() {
		switch {
		case err != nil:
			metrics.PkarrPublishError.Inc()
		case updated:
			metrics.PkarrPublishUpdate.Inc()
		default:
			metrics.PkarrPublishNoop.Inc()
		}
	}()

	signed, verr := pkarr.VerifyAndProject(key, body)
	if verr != nil {
		return false, verr
	}

	projected := pkarr.ProjectZone(signed)

	a.mu.Lock()
	cacheKey := string(key.Bytes())
	existingVal, found := a.zones.Get(cacheKey)
	if !found {
		a.zones.Add(cacheKey, projected)
		updated = true
	} else if existing := existingVal.(*PkarrZone); signed.TimestampMicros > existing.TimestampMicros {
		a.zones.Add(cacheKey, projected)
		updated = true
	}
	a.mu.Unlock()

	if !updated {
		return false, nil
	}

	wrote, werr := a.store.Upsert(ctx, signed)
	if werr != nil {
		return updated, werr
	}
	if !wrote {
		// In-memory state is authoritative; the store disagreeing (it saw
		// something newer than what we just verified) can only happen under
		// a concurrent writer that lost the in-memory race -- log and move on.
		logger.WithField("key", key.String()).Warn("store kept a newer packet than the in-memory zone")
		return updated, nil
	}
	return updated, nil
}

// DropZone removes the in-memory projection for key, forcing the next
// lookup to re-hydrate from the store. Used by the cross-node invalidation
// bus when a peer accepts a newer packet for the key.
func (a *NodeAuthority) DropZone(key zkey.PublicKey) {
	a.mu.Lock()
	a.zones.Remove(string(key.Bytes()))
	a.mu.Unlock()
}

// zoneFor returns the projected zone for key, re-hydrating from the store
// on an LRU miss.
func (a *NodeAuthority) zoneFor(ctx context.Context, key zkey.PublicKey) (*PkarrZone, bool) {
	cacheKey := string(key.Bytes())

	a.mu.RLock()
	val, ok := a.zones.Get(cacheKey)
	a.mu.RUnlock()
	if ok {
		return val.(*PkarrZone), true
	}

	signed, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	metrics.ZonesLRURehydrations.Inc()
	projected := pkarr.ProjectZone(signed)

	a.mu.Lock()
	a.zones.Add(cacheKey, projected)
	a.mu.Unlock()

	return projected, true
}

// Resolve looks up a pre-projected record set for key at the given relative
// name and type -- the lowest-level accessor described in the component
// design, with no origin rewriting.
func (a *NodeAuthority) Resolve(ctx context.Context, key zkey.PublicKey, relative dnswire.Name, t dnswire.RecordType) ([]dnswire.Record, bool) {
	zone, ok := a.zoneFor(ctx, key)
	if !ok {
		return nil, false
	}
	recs, ok := zone.Records[pkarr.RecordKey(relative, t)]
	return recs, ok
}
