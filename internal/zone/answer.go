package zone

import (
	"context"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
)

// Answer builds the response message for a single-question query message,
// the shared entry point used by both the DNS front-end and the
// DNS-over-HTTPS handler so the two transports can never diverge in
// resolution behavior.
func Answer(ctx context.Context, cat *Catalog, query *dnswire.Message) *dnswire.Message {
	resp := &dnswire.Message{
		Header: dnswire.Header{
			ID: query.Header.ID,
			QR: true,
			RD: query.Header.RD,
		},
	}

	if query.Header.Opcode == dnswire.OpcodeUpdate {
		resp.Header.Opcode = dnswire.OpcodeUpdate
		resp.Header.Rcode = dnswire.RcodeNotImp
		return resp
	}

	if len(query.Questions) != 1 {
		resp.Header.Rcode = dnswire.RcodeFormErr
		return resp
	}
	q := query.Questions[0]
	resp.Questions = []dnswire.Question{q}

	auth, ok := cat.Find(q.Name)
	if !ok {
		resp.Header.Rcode = dnswire.RcodeRefused
		return resp
	}

	result := auth.Search(ctx, q.Name, q.Type)
	resp.Header.Rcode = result.Rcode
	resp.Header.AA = result.Rcode == dnswire.RcodeNoError
	resp.Answers = result.Records
	return resp
}
