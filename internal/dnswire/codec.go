package dnswire

import "fmt"

// Decode parses a complete DNS message from wire bytes.
func Decode(data []byte) (*Message, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("dnswire: message shorter than header (%d bytes)", len(data))
	}
	r := newReader(data)

	hdr, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}

	msg := &Message{Header: hdr}

	msg.Questions = make([]Question, 0, hdr.QDCount)
	for i := uint16(0); i < hdr.QDCount; i++ {
		q, err := decodeQuestion(r)
		if err != nil {
			return nil, fmt.Errorf("dnswire: question %d: %w", i, err)
		}
		msg.Questions = append(msg.Questions, q)
	}

	for _, n := range []struct {
		count uint16
		dst   *[]Record
	}{
		{hdr.ANCount, &msg.Answers},
		{hdr.NSCount, &msg.Authority},
		{hdr.ARCount, &msg.Additional},
	} {
		recs := make([]Record, 0, n.count)
		for i := uint16(0); i < n.count; i++ {
			rec, err := decodeRecord(r)
			if err != nil {
				return nil, fmt.Errorf("dnswire: record %d: %w", i, err)
			}
			recs = append(recs, rec)
		}
		*n.dst = recs
	}

	return msg, nil
}

func decodeHeader(r *reader) (Header, error) {
	var h Header
	id, err := r.readU16()
	if err != nil {
		return h, err
	}
	flags, err := r.readU16()
	if err != nil {
		return h, err
	}
	qd, err := r.readU16()
	if err != nil {
		return h, err
	}
	an, err := r.readU16()
	if err != nil {
		return h, err
	}
	ns, err := r.readU16()
	if err != nil {
		return h, err
	}
	ar, err := r.readU16()
	if err != nil {
		return h, err
	}

	h.ID = id
	h.QR = flags&0x8000 != 0
	h.Opcode = Opcode((flags >> 11) & 0xf)
	h.AA = flags&0x0400 != 0
	h.TC = flags&0x0200 != 0
	h.RD = flags&0x0100 != 0
	h.RA = flags&0x0080 != 0
	h.Z = uint8((flags >> 4) & 0x7)
	h.Rcode = Rcode(flags & 0xf)
	h.QDCount, h.ANCount, h.NSCount, h.ARCount = qd, an, ns, ar
	return h, nil
}

func decodeQuestion(r *reader) (Question, error) {
	name, err := r.readName()
	if err != nil {
		return Question{}, err
	}
	t, err := r.readU16()
	if err != nil {
		return Question{}, err
	}
	c, err := r.readU16()
	if err != nil {
		return Question{}, err
	}
	return Question{Name: name, Type: RecordType(t), Class: Class(c)}, nil
}

func decodeRecord(r *reader) (Record, error) {
	name, err := r.readName()
	if err != nil {
		return Record{}, err
	}
	t, err := r.readU16()
	if err != nil {
		return Record{}, err
	}
	c, err := r.readU16()
	if err != nil {
		return Record{}, err
	}
	ttl, err := r.readU32()
	if err != nil {
		return Record{}, err
	}
	rdlen, err := r.readU16()
	if err != nil {
		return Record{}, err
	}
	rdata, err := r.readBytes(int(rdlen))
	if err != nil {
		return Record{}, err
	}
	// Names embedded in RDATA (CNAME/NS/SOA) may themselves use compression
	// pointers into the wider message; re-decode them relative to the whole
	// buffer rather than trusting the raw rdlen-bounded bytes verbatim.
	decoded, err := redecodeRData(r.data, r.pos-int(rdlen), RecordType(t), rdata)
	if err != nil {
		return Record{}, err
	}
	return Record{Name: name, Type: RecordType(t), Class: Class(c), TTL: ttl, RData: decoded}, nil
}

func redecodeRData(full []byte, offset int, t RecordType, raw []byte) ([]byte, error) {
	switch t {
	case TypeCNAME, TypeNS, TypePTR:
		rr := &reader{data: full, pos: offset}
		n, err := rr.readName()
		if err != nil {
			return nil, err
		}
		return encodeNameUncompressed(n), nil
	case TypeSOA:
		rr := &reader{data: full, pos: offset}
		mname, err := rr.readName()
		if err != nil {
			return nil, err
		}
		rname, err := rr.readName()
		if err != nil {
			return nil, err
		}
		serial, err := rr.readU32()
		if err != nil {
			return nil, err
		}
		refresh, err := rr.readU32()
		if err != nil {
			return nil, err
		}
		retry, err := rr.readU32()
		if err != nil {
			return nil, err
		}
		expire, err := rr.readU32()
		if err != nil {
			return nil, err
		}
		minimum, err := rr.readU32()
		if err != nil {
			return nil, err
		}
		d := SOAData{MName: mname, RName: rname, Serial: serial, Refresh: refresh, Retry: retry, Expire: expire, Minimum: minimum}
		return NewSOA(Name{}, 0, d).RData, nil
	default:
		return raw, nil
	}
}

// Encode serializes a message to wire bytes. Names are written uncompressed.
func (m *Message) Encode() []byte {
	b := getBuffer()
	defer putBuffer(b)

	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authority))
	m.Header.ARCount = uint16(len(m.Additional))

	encodeHeader(b, m.Header)
	for _, q := range m.Questions {
		b.writeName(q.Name)
		b.writeU16(uint16(q.Type))
		b.writeU16(uint16(q.Class))
	}
	for _, recs := range [][]Record{m.Answers, m.Authority, m.Additional} {
		for _, rec := range recs {
			encodeRecord(b, rec)
		}
	}

	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

func encodeHeader(b *packetBuffer, h Header) {
	b.writeU16(h.ID)

	var flags uint16
	if h.QR {
		flags |= 0x8000
	}
	flags |= uint16(h.Opcode&0xf) << 11
	if h.AA {
		flags |= 0x0400
	}
	if h.TC {
		flags |= 0x0200
	}
	if h.RD {
		flags |= 0x0100
	}
	if h.RA {
		flags |= 0x0080
	}
	flags |= uint16(h.Z&0x7) << 4
	flags |= uint16(h.Rcode & 0xf)
	b.writeU16(flags)

	b.writeU16(h.QDCount)
	b.writeU16(h.ANCount)
	b.writeU16(h.NSCount)
	b.writeU16(h.ARCount)
}

func encodeRecord(b *packetBuffer, rec Record) {
	b.writeName(rec.Name)
	b.writeU16(uint16(rec.Type))
	b.writeU16(uint16(rec.Class))
	b.writeU32(rec.TTL)
	b.writeU16(uint16(len(rec.RData)))
	b.writeBytes(rec.RData)
}
