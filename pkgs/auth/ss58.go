package auth

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Generic substrate network prefix.
const ss58Prefix = 42

var ss58Preamble = []byte("SS58PRE")

// EncodeAddress renders a public key as an SS58 address.
func EncodeAddress(pub ed25519.PublicKey) string {
	data := make([]byte, 0, 1+ed25519.PublicKeySize+2)
	data = append(data, ss58Prefix)
	data = append(data, pub...)
	sum := ss58Checksum(data)
	return base58.Encode(append(data, sum[:2]...))
}

// DecodeAddress recovers the public key behind an SS58 address.
func DecodeAddress(address string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, errors.Wrap(err, "decoding address")
	}
	if len(raw) != 1+ed25519.PublicKeySize+2 {
		return nil, errors.Errorf("address has unexpected length %d", len(raw))
	}
	if raw[0] != ss58Prefix {
		return nil, errors.Errorf("address has unexpected network prefix %d", raw[0])
	}
	data := raw[:1+ed25519.PublicKeySize]
	sum := ss58Checksum(data)
	if !bytes.Equal(raw[1+ed25519.PublicKeySize:], sum[:2]) {
		return nil, errors.New("address checksum mismatch")
	}
	return ed25519.PublicKey(data[1:]), nil
}

func ss58Checksum(data []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Preamble)
	h.Write(data)
	return h.Sum(nil)
}
