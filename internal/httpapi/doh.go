package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/state"
	"github.com/pkarrdns/pkarrdns/internal/zone"
)

// ContentTypeDNSMessage is the DoH media type from RFC 8484.
const ContentTypeDNSMessage = "application/dns-message"

// maxDoHBody caps a POSTed DNS message; 64KiB is the DNS/TCP maximum.
const maxDoHBody = 65535

func handleDoHGet(st *state.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		param := req.URL.Query().Get("dns")
		if param == "" {
			http.Error(w, "missing dns parameter", http.StatusBadRequest)
			return
		}
		wire, err := base64.RawURLEncoding.DecodeString(param)
		if err != nil {
			// Clients are supposed to strip padding, not all do.
			wire, err = base64.URLEncoding.DecodeString(param)
			if err != nil {
				http.Error(w, "invalid base64", http.StatusBadRequest)
				return
			}
		}
		serveDoH(st, w, req, wire)
	}
}

func handleDoHPost(st *state.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Content-Type") != ContentTypeDNSMessage {
			http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			return
		}
		wire, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxDoHBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		serveDoH(st, w, req, wire)
	}
}

// serveDoH dispatches the decoded DNS message through the same authority
// path the UDP/TCP front end uses, so the two transports cannot diverge.
func serveDoH(st *state.AppState, w http.ResponseWriter, req *http.Request, wire []byte) {
	query, err := dnswire.Decode(wire)
	if err != nil {
		http.Error(w, "invalid dns message", http.StatusBadRequest)
		return
	}

	resp := zone.Answer(req.Context(), st.Catalog, query)

	w.Header().Set("Content-Type", ContentTypeDNSMessage)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Encode())
}
