package dnswire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	origin := ParseName("example.com.")
	msg := &Message{
		Header: Header{ID: 0x1234, QR: true, AA: true, RD: true, Rcode: RcodeNoError},
		Questions: []Question{
			{Name: Join("foo", origin), Type: TypeA, Class: ClassIN},
		},
		Answers: []Record{
			NewA(Join("foo", origin), 300, [4]byte{10, 0, 0, 1}),
			NewTXT(Join("foo", origin), 300, "hello", "world"),
		},
	}

	wire := msg.Encode()
	require.NotEmpty(t, wire)

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, msg.Header.ID, decoded.Header.ID)
	require.True(t, decoded.Header.QR)
	require.Len(t, decoded.Questions, 1)
	require.True(t, decoded.Questions[0].Name.Equal(Join("foo", origin)))
	require.Len(t, decoded.Answers, 2)
	require.Equal(t, TypeA, decoded.Answers[0].Type)

	segs, err := decoded.Answers[1].TXTSegments()
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, segs)
}

func TestDecodeQueryHeaderOnly(t *testing.T) {
	origin := ParseName("example.com.")
	query := &Message{
		Header:    Header{ID: 7, RD: true},
		Questions: []Question{{Name: origin, Type: TypeSOA, Class: ClassIN}},
	}
	wire := query.Encode()

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.False(t, decoded.Header.QR)
	require.Equal(t, TypeSOA, decoded.Questions[0].Type)
}

func TestDecodeTruncatedMessage(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2})
	require.Error(t, err)
}

func TestCNAMERoundTrip(t *testing.T) {
	origin := ParseName("example.com.")
	target := Join("bar", origin)
	msg := &Message{
		Header:  Header{ID: 1, QR: true},
		Answers: []Record{NewCNAME(Join("foo", origin), 60, target)},
	}
	wire := msg.Encode()
	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, TypeCNAME, decoded.Answers[0].Type)
}
