package zone

import (
	"github.com/pkarrdns/pkarrdns/internal/dnswire"
)

// SOAParams are the config-supplied fields of an origin's SOA record,
// everything except the owner name, class, and serial (the serial is
// shared authority-wide, per the data model's NodeAuthority.serial).
type SOAParams struct {
	MName, RName                    dnswire.Name
	Refresh, Retry, Expire, Minimum uint32
}

// OriginConfig is the static, per-origin configuration for one zone apex:
// the SOA fields plus optional NS/A/AAAA records served at that apex.
type OriginConfig struct {
	Origin   dnswire.Name
	SOA      SOAParams
	SOATTL   uint32
	NSTTL    uint32
	ATTL     uint32
	NS       []dnswire.Name
	A        [][4]byte
	AAAA     [][16]byte
	ExtraRRs []dnswire.Record // seeded from an optional master-file, see internal/zonefile
}

type originZone struct {
	soa  dnswire.Record
	ns   []dnswire.Record
	a    []dnswire.Record
	aaaa []dnswire.Record
	rest []dnswire.Record
}

// StaticZone is the in-memory, immutable-after-construction authority for
// every configured origin's apex records: SOA, optional A/AAAA, optional
// NS, and whatever extra records a master-file seeded. It never mutates
// after New, so lookups take no lock.
type StaticZone struct {
	serial  uint32
	origins []dnswire.Name
	zones   map[string]*originZone
}

// NewStaticZone builds the static authority for the given origins. serial
// is the authority-wide serial every synthesized and static SOA carries.
func NewStaticZone(serial uint32, cfgs []OriginConfig) *StaticZone {
	sz := &StaticZone{serial: serial, zones: make(map[string]*originZone, len(cfgs))}
	for _, c := range cfgs {
		oz := &originZone{}
		oz.soa = dnswire.NewSOA(c.Origin, c.SOATTL, dnswire.SOAData{
			MName:   c.SOA.MName,
			RName:   c.SOA.RName,
			Serial:  serial,
			Refresh: c.SOA.Refresh,
			Retry:   c.SOA.Retry,
			Expire:  c.SOA.Expire,
			Minimum: c.SOA.Minimum,
		})
		for _, ns := range c.NS {
			oz.ns = append(oz.ns, dnswire.NewNS(c.Origin, c.NSTTL, ns))
		}
		for _, ip := range c.A {
			oz.a = append(oz.a, dnswire.NewA(c.Origin, c.ATTL, ip))
		}
		for _, ip := range c.AAAA {
			oz.aaaa = append(oz.aaaa, dnswire.NewAAAA(c.Origin, c.ATTL, ip))
		}
		oz.rest = append(oz.rest, c.ExtraRRs...)

		sz.origins = append(sz.origins, c.Origin)
		sz.zones[c.Origin.String()] = oz
	}
	return sz
}

// Origins returns the configured origin list in the order given to NewStaticZone.
func (sz *StaticZone) Origins() []dnswire.Name { return sz.origins }

// lookupResult distinguishes "name unknown" (NXDOMAIN) from "name known,
// no records of this type" (NOERROR with an empty answer).
type lookupResult struct {
	Records []dnswire.Record
	NXDomain bool
}

// Lookup answers a query against the static zone only. It never consults
// pkarr zones; NodeAuthority.Lookup calls this as the algorithm's final
// fallback step and for the SOA/NS short-circuit.
func (sz *StaticZone) Lookup(name dnswire.Name, t dnswire.RecordType) lookupResult {
	oz, origin, ok := sz.findOrigin(name)
	if !ok {
		return lookupResult{NXDomain: true}
	}
	if !name.Equal(origin) {
		// The static zone only serves apex records; anything deeper that
		// isn't a pkarr name is unknown to it.
		return lookupResult{NXDomain: true}
	}

	var recs []dnswire.Record
	switch t {
	case dnswire.TypeSOA:
		return lookupResult{Records: []dnswire.Record{oz.soa}}
	case dnswire.TypeNS:
		recs = append(recs, oz.ns...)
	case dnswire.TypeA:
		recs = append(recs, oz.a...)
	case dnswire.TypeAAAA:
		recs = append(recs, oz.aaaa...)
	}
	for _, rr := range oz.rest {
		if rr.Type == t && rr.Name.Equal(name) {
			recs = append(recs, rr)
		}
	}
	return lookupResult{Records: recs} // empty: NOERROR, no data
}

// findOrigin returns the longest configured origin that is a suffix of (or
// equal to) name.
func (sz *StaticZone) findOrigin(name dnswire.Name) (*originZone, dnswire.Name, bool) {
	var best dnswire.Name
	var bestOZ *originZone
	found := false
	for _, origin := range sz.origins {
		if !name.HasSuffix(origin) {
			continue
		}
		if found && origin.NumLabels() <= best.NumLabels() {
			continue
		}
		best = origin
		bestOZ = sz.zones[origin.String()]
		found = true
	}
	return bestOZ, best, found
}
