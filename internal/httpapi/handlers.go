package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkarrdns/pkarrdns/internal/perr"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/state"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/pkarrdns/pkarrdns/internal/zone"
)

// ContentTypePkarr is the media type of a Pkarr relay payload.
const ContentTypePkarr = "application/x-pkarr-signed-packet"

// maxPutBody bounds the PUT body read: relay header (72 bytes) plus the
// decoder's inner wire cap, with slack so an oversized packet reaches the
// decoder and fails with its own error instead of an opaque read error.
const maxPutBody = 64 + 8 + pkarr.MaxInnerWireBytes + 256

func handlePkarrPut(st *state.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key, err := zkey.Parse(chi.URLParam(req, "key"))
		if err != nil {
			http.Error(w, "invalid key", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxPutBody))
		if err != nil {
			http.Error(w, "invalid body payload", http.StatusBadRequest)
			return
		}

		updated, err := st.Authority.Upsert(req.Context(), body, key, zone.PacketSourcePkarrPublish)
		if err != nil {
			status := perr.As(err).HTTPStatus()
			if status == http.StatusBadRequest {
				http.Error(w, "invalid body payload", status)
			} else {
				logger.WithField("key", key.String()).WithError(err).Error("publish failed")
				http.Error(w, "publish failed", status)
			}
			st.AuditPublish(req.Context(), key, 0, state.PublishOutcomeError)
			return
		}

		var sp *pkarr.SignedPacket
		if sp, err = pkarr.Decode(key, body); err == nil {
			outcome := state.PublishOutcomeNoop
			if updated {
				outcome = state.PublishOutcomeUpdate
			}
			st.AuditPublish(req.Context(), key, sp.TimestampMicros, outcome)
		}

		if updated && st.Invalidator != nil {
			if ierr := st.Invalidator.Invalidate(key.String()); ierr != nil {
				logger.WithError(ierr).Warn("cross-node invalidation failed")
			}
		}

		// A stale packet is an idempotent success: the caller's state is
		// already published, just not newer than what we hold.
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePkarrGet(st *state.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key, err := zkey.Parse(chi.URLParam(req, "key"))
		if err != nil {
			http.Error(w, "invalid key", http.StatusBadRequest)
			return
		}

		packet, err := st.Store.Get(req.Context(), key)
		if err != nil {
			var pe *perr.Error
			if errors.As(err, &pe) && pe.Kind == perr.NotFound {
				http.Error(w, "key not found", http.StatusNotFound)
				return
			}
			logger.WithField("key", key.String()).WithError(err).Error("store read failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", ContentTypePkarr)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(packet.RelayBytes())
	}
}
