package perr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, DecodeError.HTTPStatus())
	require.Equal(t, http.StatusBadRequest, SignatureError.HTTPStatus())
	require.Equal(t, http.StatusNotFound, NotFound.HTTPStatus())
	require.Equal(t, http.StatusTooManyRequests, RateLimited.HTTPStatus())
	require.Equal(t, http.StatusServiceUnavailable, NotImplemented.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StorageError.HTTPStatus())
}

func TestRcodeMapping(t *testing.T) {
	require.Equal(t, dnswire.RcodeNXDomain, LookupNxDomain.Rcode())
	require.Equal(t, dnswire.RcodeRefused, LookupRefused.Rcode())
	require.Equal(t, dnswire.RcodeNotImp, NotImplemented.Rcode())
	require.Equal(t, dnswire.RcodeServFail, StorageError.Rcode())
}

func TestFatalKinds(t *testing.T) {
	require.True(t, ConfigError.Fatal())
	require.True(t, BindError.Fatal())
	require.False(t, DecodeError.Fatal())
}

func TestAsExtractsKindThroughWrapping(t *testing.T) {
	inner := New(SignatureError, "verify", errors.New("boom"))
	wrapped := fmt.Errorf("handling request: %w", inner)
	require.Equal(t, SignatureError, As(wrapped))

	require.Equal(t, StorageError, As(errors.New("anonymous failure")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(StorageError, "store.Get", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "store.Get")
	require.Contains(t, err.Error(), "StorageError")
}
