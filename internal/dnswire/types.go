// Package dnswire implements a minimal DNS message wire codec: enough of
// RFC 1035 (and the RR types pkarr records actually use) to decode queries,
// decode/encode signed-packet payloads, and encode authoritative responses.
// It intentionally does not attempt DNSSEC, EDNS, or exotic RR types -- unknown types round-trip as opaque RDATA.
package dnswire

import "fmt"

// RecordType is a DNS RR TYPE value.
type RecordType uint16

const (
	TypeA     RecordType = 1
	TypeNS    RecordType = 2
	TypeCNAME RecordType = 5
	TypeSOA   RecordType = 6
	TypePTR   RecordType = 12
	TypeMX    RecordType = 15
	TypeTXT   RecordType = 16
	TypeAAAA  RecordType = 28
	TypeSRV   RecordType = 33
	TypeAXFR  RecordType = 252
	TypeANY   RecordType = 255
)

func (t RecordType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypePTR:
		return "PTR"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeAXFR:
		return "AXFR"
	case TypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// Class is a DNS RR CLASS value. Only IN is ever produced by this server.
type Class uint16

const ClassIN Class = 1

// Opcode is the DNS message OPCODE (header bits 11-14).
type Opcode uint8

const (
	OpcodeQuery  Opcode = 0
	OpcodeIQuery Opcode = 1
	OpcodeStatus Opcode = 2
	OpcodeUpdate Opcode = 5
)

// Rcode is the DNS message RCODE.
type Rcode uint8

const (
	RcodeNoError  Rcode = 0
	RcodeFormErr  Rcode = 1
	RcodeServFail Rcode = 2
	RcodeNXDomain Rcode = 3
	RcodeNotImp   Rcode = 4
	RcodeRefused  Rcode = 5
)

// Header is the 12-byte DNS message header.
type Header struct {
	ID                                 uint16
	QR                                 bool
	Opcode                             Opcode
	AA, TC, RD, RA                    bool
	Z                                  uint8
	Rcode                              Rcode
	QDCount, ANCount, NSCount, ARCount uint16
}

// Question is a single entry in the Question section.
type Question struct {
	Name  Name
	Type  RecordType
	Class Class
}

// Record is a single resource record. RData holds the raw, already-decoded
// (name-decompressed where relevant) wire representation; helper accessors
// below interpret it for the well-known types this server emits.
type Record struct {
	Name  Name
	Type  RecordType
	Class Class
	TTL   uint32
	RData []byte
}

// NewA builds an A record.
func NewA(name Name, ttl uint32, ip [4]byte) Record {
	return Record{Name: name, Type: TypeA, Class: ClassIN, TTL: ttl, RData: ip[:]}
}

// NewAAAA builds an AAAA record.
func NewAAAA(name Name, ttl uint32, ip [16]byte) Record {
	return Record{Name: name, Type: TypeAAAA, Class: ClassIN, TTL: ttl, RData: ip[:]}
}

// NewTXT builds a TXT record from one or more character-strings.
func NewTXT(name Name, ttl uint32, segments ...string) Record {
	var rdata []byte
	for _, s := range segments {
		b := []byte(s)
		if len(b) > 255 {
			b = b[:255]
		}
		rdata = append(rdata, byte(len(b)))
		rdata = append(rdata, b...)
	}
	return Record{Name: name, Type: TypeTXT, Class: ClassIN, TTL: ttl, RData: rdata}
}

// NewCNAME builds a CNAME record; target is stored uncompressed in RDATA.
func NewCNAME(name Name, ttl uint32, target Name) Record {
	return Record{Name: name, Type: TypeCNAME, Class: ClassIN, TTL: ttl, RData: encodeNameUncompressed(target)}
}

// NewNS builds an NS record.
func NewNS(name Name, ttl uint32, target Name) Record {
	return Record{Name: name, Type: TypeNS, Class: ClassIN, TTL: ttl, RData: encodeNameUncompressed(target)}
}

// SOAData is the parsed form of an SOA record's RDATA.
type SOAData struct {
	MName, RName               Name
	Serial, Refresh, Retry, Expire, Minimum uint32
}

// NewSOA builds an SOA record.
func NewSOA(name Name, ttl uint32, d SOAData) Record {
	var rdata []byte
	rdata = append(rdata, encodeNameUncompressed(d.MName)...)
	rdata = append(rdata, encodeNameUncompressed(d.RName)...)
	rdata = appendU32(rdata, d.Serial)
	rdata = appendU32(rdata, d.Refresh)
	rdata = appendU32(rdata, d.Retry)
	rdata = appendU32(rdata, d.Expire)
	rdata = appendU32(rdata, d.Minimum)
	return Record{Name: name, Type: TypeSOA, Class: ClassIN, TTL: ttl, RData: rdata}
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// TXTSegments decodes a TXT record's RDATA back into its character-strings.
func (r Record) TXTSegments() ([]string, error) {
	if r.Type != TypeTXT {
		return nil, fmt.Errorf("dnswire: TXTSegments on %s record", r.Type)
	}
	var out []string
	b := r.RData
	for len(b) > 0 {
		n := int(b[0])
		b = b[1:]
		if n > len(b) {
			return nil, fmt.Errorf("dnswire: truncated TXT character-string")
		}
		out = append(out, string(b[:n]))
		b = b[n:]
	}
	return out, nil
}

// Message is a full DNS message.
type Message struct {
	Header    Header
	Questions []Question
	Answers   []Record
	Authority []Record
	Additional []Record
}
