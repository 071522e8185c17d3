// Package pkarr implements the packet decoder/verifier: parsing a Pkarr
// relay payload, verifying its Ed25519 signature, and projecting it into
// the per-key in-memory zone the authority serves answers from.
package pkarr

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/perr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
)

// MaxInnerWireBytes bounds the inner DNS message to keep per-key memory
// small; packets whose decoded wire message exceeds this are rejected.
const MaxInnerWireBytes = 1000

const (
	signatureLen  = ed25519.SignatureSize // 64
	timestampLen  = 8
	relayHeaderLen = signatureLen + timestampLen
)

// SignedPacket is a verified, self-authenticating record set published by
// the owner of PublicKey. TimestampMicros is unsigned microseconds since
// the epoch and must strictly increase across accepted updates for a key.
type SignedPacket struct {
	PublicKey       zkey.PublicKey
	TimestampMicros uint64
	Signature       [ed25519.SignatureSize]byte
	Message         *dnswire.Message
	// relayBody is the exact bytes this packet was decoded from, cached so
	// GET /pkarr/:key can echo back byte-identical relay payloads.
	relayBody []byte
}

// RelayBytes returns the exact Pkarr relay-wire encoding of this packet:
// signature(64) || timestamp_be_u64(8) || inner_dns_wire_message.
func (p *SignedPacket) RelayBytes() []byte {
	out := make([]byte, len(p.relayBody))
	copy(out, p.relayBody)
	return out
}

// Decode parses the relay wire form of a signed packet for the given
// public key (as extracted from the URL path or DNS label) without
// verifying the signature or projecting records. Decode is used by callers
// that need the raw structure without verifying (e.g. the PUT handler
// re-decodes an already accepted body to read its timestamp for the audit log).
func Decode(key zkey.PublicKey, body []byte) (*SignedPacket, error) {
	if len(body) < relayHeaderLen {
		return nil, perr.New(perr.DecodeError, "pkarr.Decode", fmt.Errorf("relay body too short: %d bytes", len(body)))
	}

	var sig [ed25519.SignatureSize]byte
	copy(sig[:], body[:signatureLen])
	ts := binary.BigEndian.Uint64(body[signatureLen:relayHeaderLen])
	wire := body[relayHeaderLen:]

	if len(wire) > MaxInnerWireBytes {
		return nil, perr.New(perr.DecodeError, "pkarr.Decode", fmt.Errorf("inner wire message %d bytes exceeds cap of %d", len(wire), MaxInnerWireBytes))
	}

	msg, err := dnswire.Decode(wire)
	if err != nil {
		return nil, perr.New(perr.DecodeError, "pkarr.Decode", err)
	}

	body2 := make([]byte, len(body))
	copy(body2, body)

	return &SignedPacket{
		PublicKey:       key,
		TimestampMicros: ts,
		Signature:       sig,
		Message:         msg,
		relayBody:       body2,
	}, nil
}

// tbsBytes returns the to-be-signed bytes: timestamp_be_u64 || packet_bytes.
func tbsBytes(ts uint64, wire []byte) []byte {
	out := make([]byte, timestampLen+len(wire))
	binary.BigEndian.PutUint64(out, ts)
	copy(out[timestampLen:], wire)
	return out
}

// VerifyAndProject decodes body, verifies the signature, and enforces that
// every answer RR's owner name ends in the label z32(key); labels to its
// left are allowed.
// It is the sole entry point callers (the HTTP PUT handler, the store's
// startup rehydration) should use -- Decode alone never verifies anything.
func VerifyAndProject(key zkey.PublicKey, body []byte) (*SignedPacket, error) {
	sp, err := Decode(key, body)
	if err != nil {
		return nil, err
	}

	wire := body[relayHeaderLen:]
	tbs := tbsBytes(sp.TimestampMicros, wire)
	if !ed25519.Verify(key.Ed25519(), tbs, sp.Signature[:]) {
		return nil, perr.New(perr.SignatureError, "pkarr.VerifyAndProject", fmt.Errorf("signature does not verify for key %s", key))
	}

	// Every answer RR's owner name is rooted at the key's own z32 label: the
	// last (right-most) label must equal z32(public_key); the labels to its
	// left, if any, are the record's name relative to the key's own apex.
	wantLabel := key.String()
	for _, rr := range sp.Message.Answers {
		if rr.Name.NumLabels() < 1 {
			return nil, perr.New(perr.DecodeError, "pkarr.VerifyAndProject", fmt.Errorf("answer owner name %q has no labels", rr.Name.String()))
		}
		last, _ := rr.Name.LabelAt(rr.Name.NumLabels() - 1)
		if last != wantLabel {
			return nil, perr.New(perr.DecodeError, "pkarr.VerifyAndProject", fmt.Errorf("answer owner name %q is not rooted at key label %q", rr.Name.String(), wantLabel))
		}
	}

	return sp, nil
}

// Encode renders a SignedPacket back to its relay wire form, recomputing
// the signature over the inner message with the given private key. It is
// used only by the peripheral publisher examples, not by the server.
func Encode(priv ed25519.PrivateKey, key zkey.PublicKey, ts uint64, msg *dnswire.Message) (*SignedPacket, error) {
	wire := msg.Encode()
	if len(wire) > MaxInnerWireBytes {
		return nil, fmt.Errorf("pkarr.Encode: inner wire message %d bytes exceeds cap of %d", len(wire), MaxInnerWireBytes)
	}

	sig := ed25519.Sign(priv, tbsBytes(ts, wire))

	body := make([]byte, 0, relayHeaderLen+len(wire))
	body = append(body, sig...)
	tsBuf := make([]byte, timestampLen)
	binary.BigEndian.PutUint64(tsBuf, ts)
	body = append(body, tsBuf...)
	body = append(body, wire...)

	var sigArr [ed25519.SignatureSize]byte
	copy(sigArr[:], sig)

	return &SignedPacket{
		PublicKey:       key,
		TimestampMicros: ts,
		Signature:       sigArr,
		Message:         msg,
		relayBody:       body,
	}, nil
}

// MoreRecentThan reports whether p has a strictly greater timestamp than
// other, the sole freshness comparison used by the store and the authority.
func (p *SignedPacket) MoreRecentThan(other *SignedPacket) bool {
	return p.TimestampMicros > other.TimestampMicros
}
