package commitment_test

import (
	"math/big"
	"strings"
	"testing"

	"zk-tax-system/internal/commitment"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitIsDeterministic(t *testing.T) {
	a := commitment.Commit(800000, "s3cret")
	b := commitment.Commit(800000, "s3cret")
	assert.Equal(t, a, b)
	assert.Len(t, a.Hex(), 2+2*commitment.DigestSize)
	assert.True(t, strings.HasPrefix(a.Hex(), "0x"))
}

func TestCommitSeparatesInputs(t *testing.T) {
	base := commitment.Commit(800000, "s3cret")
	assert.NotEqual(t, base, commitment.Commit(800000, "s3cres"))
	assert.NotEqual(t, base, commitment.Commit(800001, "s3cret"))
	assert.NotEqual(t, commitment.Commit(1, "23"), commitment.Commit(12, "3"))
}

func TestOpen(t *testing.T) {
	stored := commitment.Commit(800000, "s3cret").Hex()

	assert.NoError(t, commitment.Open(800000, "s3cret", stored))

	err := commitment.Open(800000, "wrong", stored)
	require.Error(t, err)
	assert.Equal(t, reasoncodes.ErrCommitmentMismatch, reasoncodes.CodeOf(err))

	err = commitment.Open(800000, "s3cret", "0xzz")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))
}

func TestParseDigest(t *testing.T) {
	d := commitment.Commit(42, "x")

	parsed, err := commitment.ParseDigest(d.Hex())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	withoutPrefix, err := commitment.ParseDigest(strings.TrimPrefix(d.Hex(), "0x"))
	require.NoError(t, err)
	assert.Equal(t, d, withoutPrefix)

	_, err = commitment.ParseDigest("0x" + strings.Repeat("ff", commitment.DigestSize))
	assert.True(t, reasoncodes.Is(err, reasoncodes.ErrValidation), "value above the field modulus")

	_, err = commitment.ParseDigest("0x1234")
	assert.True(t, reasoncodes.Is(err, reasoncodes.ErrValidation))
}

func TestDigestForms(t *testing.T) {
	d := commitment.Commit(42, "x")
	assert.Equal(t, d.BigInt().String(), d.Decimal())
	e := d.Element()
	var bi big.Int
	e.BigInt(&bi)
	assert.Equal(t, d.Decimal(), bi.String())
}

func TestNewSecret(t *testing.T) {
	a, err := commitment.NewSecret()
	require.NoError(t, err)
	b, err := commitment.NewSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
