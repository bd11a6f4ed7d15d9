package auth

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/pkg/errors"
)

var (
	// ErrSigning marks a failure to produce a signature, typically because the
	// keypair has no private material.
	ErrSigning = errors.New("signing failed")

	// ErrVerification marks malformed verification input (non-hex signature,
	// empty message, undecodable address). A cryptographically invalid
	// signature is not an error: Verify reports it as false.
	ErrVerification = errors.New("malformed verification input")
)

// Keypair holds an identity's key material. Verification-only keypairs carry
// no private key and refuse to sign.
type Keypair struct {
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
	address string
}

// KeypairFromSeed builds a signing keypair from a hex-encoded 32-byte seed.
func KeypairFromSeed(hexSeed string) (*Keypair, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, errors.Wrap(err, "decoding wallet seed")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("wallet seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		pub:     pub,
		priv:    priv,
		address: EncodeAddress(pub),
	}, nil
}

func (k *Keypair) Address() string {
	return k.address
}

// Sign produces a detached hex-encoded signature over message. Deterministic
// per keypair and message.
func (k *Keypair) Sign(message string) (string, error) {
	if k.priv == nil {
		return "", errors.Wrap(ErrSigning, "keypair has no private material")
	}
	if message == "" {
		return "", errors.Wrap(ErrSigning, "empty message")
	}
	sig := ed25519.Sign(k.priv, []byte(message))
	return hex.EncodeToString(sig), nil
}

// Verify checks a detached hex signature against the signer's address. It
// returns false (never an error) for a cryptographically invalid signature,
// and ErrVerification only when the input itself is malformed.
func Verify(address, message, hexSig string) (bool, error) {
	if message == "" {
		return false, errors.Wrap(ErrVerification, "empty message")
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return false, errors.Wrapf(ErrVerification, "non-hex signature: %v", err)
	}
	pub, err := DecodeAddress(address)
	if err != nil {
		return false, errors.Wrapf(ErrVerification, "bad address: %v", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(pub, []byte(message), sig), nil
}

// SubmissionMessage is the exact string a participant signs when announcing a
// payload: "{address}:{locator}". A signature is valid for exactly this signer
// and locator, never transferable across either.
func SubmissionMessage(address, locator string) string {
	return address + ":" + locator
}
