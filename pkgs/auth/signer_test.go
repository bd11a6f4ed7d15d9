package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(testSeed)
	require.NoError(t, err)
	return kp
}

func TestSignVerifyRoundtrip(t *testing.T) {
	kp := testKeypair(t)
	message := SubmissionMessage(kp.Address(), "https://gist.github.com/octocat/abc123")

	sig, err := kp.Sign(message)
	require.NoError(t, err)

	ok, err := Verify(kp.Address(), message, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignIsDeterministic(t *testing.T) {
	kp := testKeypair(t)

	first, err := kp.Sign("hello")
	require.NoError(t, err)
	second, err := kp.Sign("hello")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVerifyDifferentMessageFails(t *testing.T) {
	kp := testKeypair(t)
	sig, err := kp.Sign(SubmissionMessage(kp.Address(), "https://gist.github.com/octocat/abc123"))
	require.NoError(t, err)

	ok, err := Verify(kp.Address(), SubmissionMessage(kp.Address(), "https://gist.github.com/octocat/other"), sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature must not transfer across locators")
}

func TestVerifyDifferentAddressFails(t *testing.T) {
	kp := testKeypair(t)
	other, err := KeypairFromSeed(strings.Repeat("42", 32))
	require.NoError(t, err)

	message := "some message"
	sig, err := kp.Sign(message)
	require.NoError(t, err)

	ok, err := Verify(other.Address(), message, sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature must not transfer across identities")
}

func TestVerifyMalformedSignature(t *testing.T) {
	kp := testKeypair(t)

	_, err := Verify(kp.Address(), "message", "not-hex!!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerification))
}

func TestVerifyEmptyMessage(t *testing.T) {
	kp := testKeypair(t)

	_, err := Verify(kp.Address(), "", strings.Repeat("00", 64))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerification))
}

func TestVerifyWrongLengthSignatureIsFalseNotError(t *testing.T) {
	kp := testKeypair(t)

	ok, err := Verify(kp.Address(), "message", "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignWithoutPrivateMaterial(t *testing.T) {
	kp := &Keypair{pub: testKeypair(t).pub}

	_, err := kp.Sign("message")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSigning))
}

func TestKeypairFromSeedRejectsBadInput(t *testing.T) {
	_, err := KeypairFromSeed("zz")
	assert.Error(t, err)

	_, err = KeypairFromSeed("abcd")
	assert.Error(t, err)
}

func TestAddressRoundtrip(t *testing.T) {
	seed, err := hex.DecodeString(testSeed)
	require.NoError(t, err)
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	address := EncodeAddress(pub)
	decoded, err := DecodeAddress(address)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)
}

func TestDecodeAddressChecksumMismatch(t *testing.T) {
	kp := testKeypair(t)
	address := kp.Address()

	// Flip the last character to corrupt the checksum.
	last := address[len(address)-1]
	replacement := byte('2')
	if last == replacement {
		replacement = '3'
	}
	corrupted := address[:len(address)-1] + string(replacement)

	_, err := DecodeAddress(corrupted)
	assert.Error(t, err)
}
