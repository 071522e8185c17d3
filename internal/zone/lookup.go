package zone

import (
	"context"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
)

// Lookup implements the name-resolution algorithm: SOA/NS short-circuit,
// AXFR refusal, origin matching with longest-suffix tie-break, key-label
// extraction, pkarr zone lookup, and static-zone fallback.
func (a *NodeAuthority) Lookup(ctx context.Context, name dnswire.Name, t dnswire.RecordType) AuthLookup {
	// 1. SOA/NS short-circuit.
	if t == dnswire.TypeSOA || t == dnswire.TypeNS {
		return a.staticAnswer(name, t)
	}

	// 2. AXFR.
	if t == dnswire.TypeAXFR {
		return AuthLookup{Rcode: dnswire.RcodeRefused}
	}

	// 3. Origin match: longest suffix O of name with at least one label above it.
	origin, ok := a.matchOrigin(name)
	if !ok {
		return a.staticAnswer(name, t)
	}

	// 4. Extract the label immediately above the origin.
	keyIdx := name.NumLabels() - origin.NumLabels() - 1
	label, _ := name.LabelAt(keyIdx)
	key, err := zkey.Parse(label)
	if err != nil {
		return a.staticAnswer(name, t)
	}

	// 5. Record lookup under the remainder of the name below the key label.
	relative := dnswire.Root
	if keyIdx > 0 {
		relative = dnswire.NameFromLabels(name.Labels()[:keyIdx])
	}

	recs, found := a.Resolve(ctx, key, relative, t)
	if !found {
		return AuthLookup{Rcode: dnswire.RcodeNXDomain}
	}
	if len(recs) == 0 {
		return AuthLookup{Rcode: dnswire.RcodeNXDomain}
	}

	synthesized := make([]dnswire.Record, len(recs))
	keyOrigin := dnswire.Join(key.String(), origin)
	owner := keyOrigin.Append(relative)
	for i, rr := range recs {
		out := rr
		out.Name = owner
		synthesized[i] = out
	}
	return AuthLookup{Records: synthesized, Rcode: dnswire.RcodeNoError}
}

// Search is the top-level entry point matching request.query_type dispatch:
// SOA always answered from the static zone at the primary origin, AXFR
// refused, everything else routed through Lookup.
func (a *NodeAuthority) Search(ctx context.Context, name dnswire.Name, t dnswire.RecordType) AuthLookup {
	if t == dnswire.TypeSOA {
		return a.staticAnswer(a.primaryOrigin, t)
	}
	if t == dnswire.TypeAXFR {
		return AuthLookup{Rcode: dnswire.RcodeRefused}
	}
	return a.Lookup(ctx, name, t)
}

// Update implements the authority's DNS UPDATE handling: always NotImp, DNS
// UPDATE was replaced entirely by signed packets over the HTTP relay.
func (a *NodeAuthority) Update(context.Context) error {
	return errNotImplemented
}

func (a *NodeAuthority) staticAnswer(name dnswire.Name, t dnswire.RecordType) AuthLookup {
	res := a.static.Lookup(name, t)
	if res.NXDomain {
		return AuthLookup{Rcode: dnswire.RcodeNXDomain}
	}
	return AuthLookup{Records: res.Records, Rcode: dnswire.RcodeNoError}
}

// matchOrigin finds the longest configured origin that is a suffix of name
// with at least one label above it (the key label).
func (a *NodeAuthority) matchOrigin(name dnswire.Name) (dnswire.Name, bool) {
	var best dnswire.Name
	found := false
	for _, origin := range a.allOrigins {
		if !name.HasSuffix(origin) {
			continue
		}
		if name.NumLabels() < origin.NumLabels()+1 {
			continue
		}
		if found && origin.NumLabels() <= best.NumLabels() {
			continue
		}
		best = origin
		found = true
	}
	return best, found
}
