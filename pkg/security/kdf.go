package security

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key derivation info strings.
var (
	blockCipherKeyInfo    = []byte("COSEM EK")
	authenticationKeyInfo = []byte("COSEM AK")
)

// KeySet is the key pair of one meter.
type KeySet struct {
	BlockCipherKey    []byte
	AuthenticationKey []byte
}

// DeriveKeys derives a meter's keys from a head-end master key using
// HKDF-SHA256 salted with the meter's system title.
//
//	EK = HKDF(IKM = master, Salt = systemTitle, Info = "COSEM EK", L = 16)
//	AK = HKDF(IKM = master, Salt = systemTitle, Info = "COSEM AK", L = 16)
func DeriveKeys(master, systemTitle []byte) (KeySet, error) {
	if len(master) < KeySize {
		return KeySet{}, errors.New("security: master key shorter than 16 bytes")
	}
	if len(systemTitle) != SystemTitleSize {
		return KeySet{}, ErrInvalidSystemTitle
	}
	ek, err := hkdfSHA256(master, systemTitle, blockCipherKeyInfo, KeySize)
	if err != nil {
		return KeySet{}, err
	}
	ak, err := hkdfSHA256(master, systemTitle, authenticationKeyInfo, KeySize)
	if err != nil {
		return KeySet{}, err
	}
	return KeySet{BlockCipherKey: ek, AuthenticationKey: ak}, nil
}

func hkdfSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
