// Package security implements the DLMS/COSEM security suite 0: AES-128-GCM
// ciphering of APDUs and the high-level security (HLS) authentication
// mechanisms.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// Sizes from the security suite.
const (
	KeySize         = 16
	SystemTitleSize = 8
	TagSize         = 12
	NonceSize       = SystemTitleSize + 4

	// HeaderSize is the security header: security control and invocation
	// counter.
	HeaderSize = 5
)

// SecurityControl is the security control byte of a ciphered APDU.
type SecurityControl uint8

// Security control bits. The low nibble is the suite id.
const (
	Authentication SecurityControl = 0x10
	Encryption     SecurityControl = 0x20
	BroadcastKey   SecurityControl = 0x40
	Compression    SecurityControl = 0x80

	AuthenticatedEncryption = Authentication | Encryption
)

// Authenticated reports whether the authentication bit is set.
func (sc SecurityControl) Authenticated() bool { return sc&Authentication != 0 }

// Encrypted reports whether the encryption bit is set.
func (sc SecurityControl) Encrypted() bool { return sc&Encryption != 0 }

// Validate accepts suite 0 with authentication, encryption or both.
// Broadcast keys and compression are not supported.
func (sc SecurityControl) Validate() error {
	if sc&0x0F != 0 || sc&(BroadcastKey|Compression) != 0 || sc&AuthenticatedEncryption == 0 {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidSecurityControl, uint8(sc))
	}
	return nil
}

// Params are the inputs of one protection operation.
type Params struct {
	Control SecurityControl

	// SystemTitle is the title of the party applying protection.
	SystemTitle []byte

	InvocationCounter uint32
	BlockCipherKey    []byte
	AuthenticationKey []byte
}

func (p Params) check() error {
	if err := p.Control.Validate(); err != nil {
		return err
	}
	if len(p.SystemTitle) != SystemTitleSize {
		return ErrInvalidSystemTitle
	}
	if len(p.BlockCipherKey) != KeySize {
		return ErrInvalidKey
	}
	if p.Control.Authenticated() && len(p.AuthenticationKey) != KeySize {
		return ErrInvalidKey
	}
	return nil
}

// Nonce builds the initialization vector: system title followed by the
// invocation counter, big-endian.
func Nonce(systemTitle []byte, ic uint32) []byte {
	iv := make([]byte, NonceSize)
	copy(iv, systemTitle)
	binary.BigEndian.PutUint32(iv[SystemTitleSize:], ic)
	return iv
}

// aad returns the associated data. With encryption it is SC || AK; for
// authentication only the plaintext is appended.
func (p Params) aad(plaintext []byte) []byte {
	a := make([]byte, 0, 1+len(p.AuthenticationKey)+len(plaintext))
	a = append(a, byte(p.Control))
	a = append(a, p.AuthenticationKey...)
	if !p.Control.Encrypted() {
		a = append(a, plaintext...)
	}
	return a
}

func newGCM(key []byte) (cipher.AEAD, cipher.Block, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, nil, err
	}
	return aead, block, nil
}

// ctr applies the GCM keystream without authentication. With a 96-bit IV
// the first counter block used for payload is IV || 00000002.
func ctr(block cipher.Block, iv, in []byte) []byte {
	j := make([]byte, aes.BlockSize)
	copy(j, iv)
	j[aes.BlockSize-1] = 2
	out := make([]byte, len(in))
	cipher.NewCTR(block, j).XORKeyStream(out, in)
	return out
}

// Seal protects plaintext and returns the protected payload without the
// security header:
//
//	authentication only:      plaintext || tag
//	encryption only:          ciphertext
//	authenticated encryption: ciphertext || tag
func Seal(p Params, plaintext []byte) ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	aead, block, err := newGCM(p.BlockCipherKey)
	if err != nil {
		return nil, err
	}
	iv := Nonce(p.SystemTitle, p.InvocationCounter)
	switch {
	case p.Control == Encryption:
		return ctr(block, iv, plaintext), nil
	case p.Control == Authentication:
		tag := aead.Seal(nil, iv, nil, p.aad(plaintext))
		return append(append(make([]byte, 0, len(plaintext)+TagSize), plaintext...), tag...), nil
	default:
		return aead.Seal(nil, iv, plaintext, p.aad(nil)), nil
	}
}

// Open verifies and removes the protection applied by Seal. Any integrity
// failure yields ErrDecryptionFailed and no plaintext.
func Open(p Params, payload []byte) ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	aead, block, err := newGCM(p.BlockCipherKey)
	if err != nil {
		return nil, err
	}
	iv := Nonce(p.SystemTitle, p.InvocationCounter)
	if p.Control == Encryption {
		return ctr(block, iv, payload), nil
	}
	if len(payload) < TagSize {
		return nil, ErrFrameTooShort
	}
	if p.Control == Authentication {
		body, tag := payload[:len(payload)-TagSize], payload[len(payload)-TagSize:]
		want := aead.Seal(nil, iv, nil, p.aad(body))
		if subtle.ConstantTimeCompare(want, tag) != 1 {
			return nil, ErrDecryptionFailed
		}
		return append([]byte(nil), body...), nil
	}
	pt, err := aead.Open(nil, iv, payload, p.aad(nil))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

// GMAC returns the 12-byte authentication tag over SC || AK || data, as
// used by HLS mechanism 5.
func GMAC(p Params, data []byte) ([]byte, error) {
	p.Control = Authentication
	out, err := Seal(p, data)
	if err != nil {
		return nil, err
	}
	return out[len(data):], nil
}
