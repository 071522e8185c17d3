package pkarr

import (
	"fmt"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
)

// RecordKey builds the map key identifying one record set within a
// projected zone: the canonical (lowercased, trailing-dot) form of the
// relative owner name plus the record type. Using the canonical form
// keeps lookups case-folded, matching name comparison everywhere else.
func RecordKey(name dnswire.Name, t dnswire.RecordType) string {
	return fmt.Sprintf("%s|%d", name.String(), uint16(t))
}

// ProjectedZone is the pure projection of a SignedPacket's answer section:
// every owner name stripped down to "empty" at the key's own apex, SOA/NS
// filtered out, and any RR whose top label didn't match the key already
// rejected during verification. Records is keyed by RecordKey.
type ProjectedZone struct {
	TimestampMicros uint64
	Records         map[string][]dnswire.Record
}

// ProjectZone strips each answer RR's owner name down to the labels below
// the key label (so the apex of the projection is "empty"), drops SOA and
// NS records, and groups the remainder by (name, type).
func ProjectZone(sp *SignedPacket) *ProjectedZone {
	pz := &ProjectedZone{
		TimestampMicros: sp.TimestampMicros,
		Records:         make(map[string][]dnswire.Record),
	}

	for _, rr := range sp.Message.Answers {
		if rr.Type == dnswire.TypeSOA || rr.Type == dnswire.TypeNS {
			continue
		}
		// VerifyAndProject already confirmed the last label is the key's
		// own z32 name; drop it to get the name relative to the key's apex.
		relative := rr.Name.WithoutLastLabel()
		key := RecordKey(relative, rr.Type)
		rewritten := rr
		rewritten.Name = relative
		pz.Records[key] = append(pz.Records[key], rewritten)
	}

	return pz
}
