// Package credential turns operator secret material into a signing identity.
package credential

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrInvalidCredentialFormat is returned when the secret cannot be decoded
// into a Solana keypair.
var ErrInvalidCredentialFormat = errors.New("invalid credential format")

// ErrInvalidAddress is returned when a public address does not decode to 32 bytes.
var ErrInvalidAddress = errors.New("invalid address")

// Solana secret keys are 64 bytes: ed25519 seed (32) | public key (32).
const (
	secretKeySize = ed25519.PrivateKeySize
	seedSize      = ed25519.SeedSize
)

// Identity is a resolved signing identity.
// The private key never leaves this package except as a signing callback.
type Identity struct {
	address string
	public  solana.PublicKey
	private solana.PrivateKey
}

// Address returns the base58 public address.
func (id *Identity) Address() string {
	return id.address
}

// PublicKey returns the public key.
func (id *Identity) PublicKey() solana.PublicKey {
	return id.public
}

// SignTransaction signs tx with the identity key. Only the identity's own
// public key is resolvable as a signer.
func (id *Identity) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(id.public) {
			return &id.private
		}
		return nil
	})
	return err
}

// String renders only the address so identities are safe to log.
func (id *Identity) String() string {
	return id.address
}

// Resolve decodes secret into an Identity.
//
// Accepted encodings:
//   - base58 of the 64-byte secret key (Phantom/solana-web3 export)
//   - base58 of the 32-byte seed
//   - JSON byte array of the 64-byte secret key (solana-keygen file contents)
func Resolve(secret string) (*Identity, error) {
	raw, err := decode(strings.TrimSpace(secret))
	if err != nil {
		return nil, ErrInvalidCredentialFormat
	}

	switch len(raw) {
	case seedSize:
		raw = ed25519.NewKeyFromSeed(raw)
	case secretKeySize:
		derived := ed25519.NewKeyFromSeed(raw[:seedSize])
		if !bytes.Equal(derived[seedSize:], raw[seedSize:]) {
			return nil, ErrInvalidCredentialFormat
		}
	default:
		return nil, ErrInvalidCredentialFormat
	}

	if _, err := new(edwards25519.Point).SetBytes(raw[seedSize:]); err != nil {
		return nil, ErrInvalidCredentialFormat
	}

	private := solana.PrivateKey(append([]byte(nil), raw...))
	public := private.PublicKey()

	return &Identity{
		address: public.String(),
		public:  public,
		private: private,
	}, nil
}

// decode returns the raw key bytes of secret.
func decode(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrInvalidCredentialFormat
	}
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, err
		}
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, ErrInvalidCredentialFormat
			}
			out[i] = byte(v)
		}
		return out, nil
	}
	return base58.Decode(secret)
}

// ValidateAddress checks that addr is a base58 32-byte public key.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return ErrInvalidAddress
	}
	return nil
}
