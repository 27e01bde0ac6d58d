// Package commitment binds an income value to a principal-held secret.
//
// The digest is MiMC over the BN254 scalar field applied to the pair
// (income, SHA-256(secret) mod r), so the proving circuit can recompute it.
package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"

	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

const (
	DigestSize = fr.Bytes
	secretSize = 32
)

// Digest is a canonical big-endian BN254 scalar.
type Digest [DigestSize]byte

// SecretElement maps an arbitrary secret string into the scalar field.
func SecretElement(secret string) fr.Element {
	sum := sha256.Sum256([]byte(secret))
	var e fr.Element
	e.SetBytes(sum[:])
	return e
}

func Commit(income uint64, secret string) Digest {
	var incomeElement fr.Element
	incomeElement.SetUint64(income)
	secretElement := SecretElement(secret)

	h := mimc.NewMiMC()
	incomeBytes := incomeElement.Bytes()
	secretBytes := secretElement.Bytes()
	// canonical elements never fail to absorb
	_, _ = h.Write(incomeBytes[:])
	_, _ = h.Write(secretBytes[:])

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Open recomputes the digest and compares it with the stored form.
func Open(income uint64, secret string, stored string) error {
	want, err := ParseDigest(stored)
	if err != nil {
		return err
	}
	got := Commit(income, secret)
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return reasoncodes.New(reasoncodes.ErrCommitmentMismatch, "commitment does not open to the supplied values")
	}
	return nil
}

func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != 2*DigestSize {
		return d, reasoncodes.New(reasoncodes.ErrValidation, "commitment must be %d hex characters", 2*DigestSize)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return d, reasoncodes.Wrap(reasoncodes.ErrValidation, err, "commitment is not hex")
	}
	if new(big.Int).SetBytes(b).Cmp(fr.Modulus()) >= 0 {
		return d, reasoncodes.New(reasoncodes.ErrValidation, "commitment is not a field element")
	}
	copy(d[:], b)
	return d, nil
}

func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) BigInt() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// Decimal is the form used in public signals.
func (d Digest) Decimal() string {
	return d.BigInt().String()
}

func (d Digest) Element() fr.Element {
	var e fr.Element
	e.SetBytes(d[:])
	return e
}

// NewSecret returns 32 random bytes hex-encoded.
func NewSecret() (string, error) {
	b := make([]byte, secretSize)
	if _, err := rand.Read(b); err != nil {
		return "", reasoncodes.Wrap(reasoncodes.ErrInternal, err, "read randomness")
	}
	return hex.EncodeToString(b), nil
}
