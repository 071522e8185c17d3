// Package zonefile parses a small subset of RFC 1035 master-file syntax,
// enough to seed extra static apex records at startup: $ORIGIN and $TTL
// directives, comments, and the record types the relay itself serves.
package zonefile

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
)

// Parser reads master-file lines into dnswire records.
type Parser struct {
	Origin     dnswire.Name
	DefaultTTL uint32
}

// NewParser builds a Parser rooted at origin. A $ORIGIN directive in the
// file overrides it.
func NewParser(origin dnswire.Name) *Parser {
	return &Parser{Origin: origin, DefaultTTL: 3600}
}

// Parse reads every record from r. Lines it cannot interpret are errors;
// a partial zone is never returned.
func (p *Parser) Parse(r io.Reader) ([]dnswire.Record, error) {
	var records []dnswire.Record
	var lastName dnswire.Name
	haveLast := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		leadingWS := len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if strings.HasPrefix(fields[0], "$") {
			if err := p.directive(fields); err != nil {
				return nil, fmt.Errorf("zonefile: line %d: %w", lineNo, err)
			}
			continue
		}

		name := lastName
		if !leadingWS {
			name = p.qualify(fields[0])
			fields = fields[1:]
			lastName, haveLast = name, true
		} else if !haveLast {
			return nil, fmt.Errorf("zonefile: line %d: record with no owner name", lineNo)
		}

		rec, err := p.record(name, fields)
		if err != nil {
			return nil, fmt.Errorf("zonefile: line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("zonefile: %w", err)
	}
	return records, nil
}

func (p *Parser) directive(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("directive %s needs an argument", fields[0])
	}
	switch strings.ToUpper(fields[0]) {
	case "$ORIGIN":
		p.Origin = dnswire.ParseName(fields[1])
	case "$TTL":
		ttl, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad $TTL %q", fields[1])
		}
		p.DefaultTTL = uint32(ttl)
	default:
		return fmt.Errorf("unsupported directive %s", fields[0])
	}
	return nil
}

// record parses "[ttl] [IN] TYPE rdata..." for one owner name.
func (p *Parser) record(name dnswire.Name, fields []string) (dnswire.Record, error) {
	ttl := p.DefaultTTL
	if len(fields) > 0 {
		if v, err := strconv.ParseUint(fields[0], 10, 32); err == nil {
			ttl = uint32(v)
			fields = fields[1:]
		}
	}
	if len(fields) > 0 && strings.EqualFold(fields[0], "IN") {
		fields = fields[1:]
	}
	if len(fields) < 2 {
		return dnswire.Record{}, fmt.Errorf("truncated record for %s", name)
	}
	typ, rdata := strings.ToUpper(fields[0]), fields[1:]

	switch typ {
	case "A":
		ip := net.ParseIP(rdata[0]).To4()
		if ip == nil {
			return dnswire.Record{}, fmt.Errorf("bad A address %q", rdata[0])
		}
		var v4 [4]byte
		copy(v4[:], ip)
		return dnswire.NewA(name, ttl, v4), nil
	case "AAAA":
		ip := net.ParseIP(rdata[0]).To16()
		if ip == nil || ip.To4() != nil {
			return dnswire.Record{}, fmt.Errorf("bad AAAA address %q", rdata[0])
		}
		var v6 [16]byte
		copy(v6[:], ip)
		return dnswire.NewAAAA(name, ttl, v6), nil
	case "TXT":
		// Each whitespace-separated token becomes its own character-string,
		// surrounding quotes trimmed; a quoted string containing spaces is
		// not kept together as one string.
		segments := make([]string, 0, len(rdata))
		for _, s := range rdata {
			segments = append(segments, strings.Trim(s, `"`))
		}
		return dnswire.NewTXT(name, ttl, segments...), nil
	case "NS":
		return dnswire.NewNS(name, ttl, p.qualify(rdata[0])), nil
	case "CNAME":
		return dnswire.NewCNAME(name, ttl, p.qualify(rdata[0])), nil
	default:
		return dnswire.Record{}, fmt.Errorf("unsupported record type %s", typ)
	}
}

// qualify resolves a possibly-relative owner name against the origin. "@"
// means the origin itself; names without a trailing dot are relative.
func (p *Parser) qualify(s string) dnswire.Name {
	if s == "@" {
		return p.Origin
	}
	if strings.HasSuffix(s, ".") {
		return dnswire.ParseName(s)
	}
	return p.Origin.Append(dnswire.ParseName(s))
}
