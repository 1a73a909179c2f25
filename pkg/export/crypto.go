package export

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/ispacehq/ivault/pkg/crypto"
)

// SaltLength is the length of the per-export salt in bytes.
const SaltLength = 32

// HMACLength is the length of the HMAC-SHA256 trailer in bytes.
const HMACLength = 32

// HKDF info strings binding the derived keys to their purpose.
const (
	hkdfInfoEncryption = "ivault-export-encryption"
	hkdfInfoMAC        = "ivault-export-mac"
)

// DeriveExportKeys derives the encryption and MAC keys from a passphrase
// and a fresh salt. The two keys are separated by HKDF so the MAC key
// never doubles as cipher key.
func DeriveExportKeys(passphrase, salt []byte) (encKey, macKey []byte, err error) {
	if len(passphrase) == 0 {
		return nil, nil, ErrEmptyPassphrase
	}

	masterKey := crypto.DeriveKey(passphrase, salt)
	defer crypto.SecureWipe(masterKey)

	encKey, err = crypto.DeriveSubkey(masterKey, []byte(hkdfInfoEncryption))
	if err != nil {
		return nil, nil, err
	}
	macKey, err = crypto.DeriveSubkey(masterKey, []byte(hkdfInfoMAC))
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, err
	}
	return encKey, macKey, nil
}

// ComputeHMAC computes HMAC-SHA256 over data.
func ComputeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC reports whether expectedMAC matches data under key.
func VerifyHMAC(data, expectedMAC, key []byte) bool {
	return hmac.Equal(ComputeHMAC(data, key), expectedMAC)
}
