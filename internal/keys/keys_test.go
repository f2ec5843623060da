package keys

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
)

// decodeSafe reverses MakeURLSafe and restores padding.
func decodeSafe(t *testing.T, s string) []byte {
	t.Helper()
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return raw
}

func TestMakeURLSafe(t *testing.T) {
	assert.Equal(t, "ab-cd_ef", MakeURLSafe("ab+cd/ef=="))
	assert.Equal(t, "abc", MakeURLSafe("abc"))
	assert.Equal(t, "", MakeURLSafe("===="))
}

func TestMakeURLSafeIdempotent(t *testing.T) {
	for _, in := range []string{"+/+/==", "AAAA", "a+b/c=", "--__", ""} {
		once := MakeURLSafe(in)
		assert.Equal(t, once, MakeURLSafe(once), "input %q", in)
		assert.NotContains(t, once, "+")
		assert.NotContains(t, once, "/")
		assert.False(t, strings.HasSuffix(once, "="))
	}
}

func TestToQualifiedKeyLayout(t *testing.T) {
	bodies := [][]byte{
		make([]byte, BodySize),
		bytes.Repeat([]byte{0xff}, BodySize),
		[]byte("0123456789abcdefghij"),
		{0xfb, 0xef, 0xbe, 0xfb, 0xef, 0xbe, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d},
	}
	for _, body := range bodies {
		for _, logical := range []bool{true, false} {
			q, err := ToQualifiedKey(base64.StdEncoding.EncodeToString(body), logical)
			require.NoError(t, err)
			assert.Len(t, q, 32)

			raw := decodeSafe(t, q)
			require.Len(t, raw, QualifiedSize)

			want := []byte{0, 0, 0, 0}
			if logical {
				want = []byte{0x01, 0, 0, 0}
			}
			assert.Equal(t, want, raw[:FlagSize])
			assert.Equal(t, body, raw[FlagSize:])
		}
	}
}

func TestToQualifiedKeyZeroBody(t *testing.T) {
	// 20 zero bytes in standard base64 with padding.
	short := base64.StdEncoding.EncodeToString(make([]byte, BodySize))
	q, err := ToQualifiedKey(short, true)
	require.NoError(t, err)
	assert.NotContains(t, q, "+")
	assert.NotContains(t, q, "/")
	assert.False(t, strings.HasSuffix(q, "="))

	raw := decodeSafe(t, q)
	require.Len(t, raw, QualifiedSize)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, raw[:4])
}

func TestToQualifiedKeyUnpaddedInput(t *testing.T) {
	q, err := ToQualifiedKey("AAAAAAAAAAAAAAAAAAAA", true)
	require.NoError(t, err)
	raw := decodeSafe(t, q)
	require.Len(t, raw, QualifiedSize)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, raw[:4])
	assert.Equal(t, make([]byte, 16), raw[8:])
}

func TestToQualifiedKeyShortBodyIsZeroPadded(t *testing.T) {
	q, err := ToQualifiedKey(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), false)
	require.NoError(t, err)
	raw := decodeSafe(t, q)
	assert.Equal(t, []byte{1, 2, 3}, raw[4:7])
	assert.Equal(t, make([]byte, BodySize-3), raw[7:])
}

func TestToQualifiedKeyRejectsOversizedBody(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, BodySize+1))
	_, err := ToQualifiedKey(short, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyFormat))

	var kfe *KeyFormatError
	require.True(t, errors.As(err, &kfe))
	assert.Equal(t, short, kfe.Key)
}

func TestToQualifiedKeyRejectsGarbage(t *testing.T) {
	_, err := ToQualifiedKey("not base64!!", false)
	assert.ErrorIs(t, err, ErrKeyFormat)
}

func TestToQualifiedKeyDeterministic(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("0123456789abcdefghij"))
	a, err := ToQualifiedKey(short, false)
	require.NoError(t, err)
	_, err = ToQualifiedKey(base64.StdEncoding.EncodeToString([]byte("zzzzzzzzzzzzzzzzzzzz")), true)
	require.NoError(t, err)
	b, err := ToQualifiedKey(short, false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseQualifiedKeyRoundTrip(t *testing.T) {
	body := []byte("0123456789abcdefghij")
	short := ShortKey(body)

	q, err := ToQualifiedKeyWithFlags(short, dtschema.Level)
	require.NoError(t, err)

	k, err := ParseQualifiedKey(q)
	require.NoError(t, err)
	assert.Equal(t, dtschema.Level, k.Flags)
	assert.True(t, k.IsLogical())
	assert.Equal(t, body, k.Body[:])
	assert.Equal(t, short, k.ShortKey())
	assert.Equal(t, q, k.String())
}

func TestParseQualifiedKeyWrongLength(t *testing.T) {
	_, err := ParseQualifiedKey(MakeURLSafe(base64.StdEncoding.EncodeToString(make([]byte, 20))))
	assert.ErrorIs(t, err, ErrKeyFormat)
}
