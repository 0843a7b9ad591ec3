package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyCodecGenerate(t *testing.T) {
	codec := NewKeyCodec("")
	a, err := codec.Generate()
	require.NoError(t, err)
	b, err := codec.Generate()
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Len(t, a, 56)
	require.Equal(t, 56, codec.KeyLength())
	require.True(t, codec.WellFormed(a))
	require.Regexp(t, `^sk_analytics_[A-Za-z0-9_-]{43}$`, a)
}

func TestKeyCodecDigest(t *testing.T) {
	codec := NewKeyCodec(DefaultKeyPrefix)
	digest := codec.Digest("sk_analytics_example")
	require.Len(t, digest, 64)
	require.True(t, regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(digest))
	require.Equal(t, digest, codec.Digest("sk_analytics_example"))
	require.NotEqual(t, digest, codec.Digest("sk_analytics_examplf"))
}

func TestKeyCodecWellFormed(t *testing.T) {
	codec := NewKeyCodec(DefaultKeyPrefix)
	require.False(t, codec.WellFormed(""))
	require.False(t, codec.WellFormed("sk_analytics_short"))
	require.False(t, codec.WellFormed("pk_analytics_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.True(t, codec.WellFormed("sk_analytics_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
}
