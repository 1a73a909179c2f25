package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ispacehq/ivault/pkg/crypto"
	"github.com/ispacehq/ivault/pkg/keystore"
)

// PasscodeEntryID is the keystore entry holding the enrolled passcode
// verifier. Only an Argon2id hash and its salt are stored, never the
// passcode itself.
const PasscodeEntryID = "session.passcode"

const passcodeSaltLength = 16

// ErrNoPasscode indicates no passcode has been enrolled yet.
var ErrNoPasscode = errors.New("session: no passcode enrolled")

// passcodeRecord is the stored verifier.
type passcodeRecord struct {
	Salt []byte `json:"salt"`
	Hash []byte `json:"hash"`
}

// PasscodeAuthenticator verifies a user-supplied passcode against an
// Argon2id verifier enrolled in the keystore. It stands in for the
// original platform's biometric/passcode challenge.
type PasscodeAuthenticator struct {
	keys *keystore.Store

	// Prompt obtains the passcode from the user (terminal prompt in the
	// CLI, fixed value in tests).
	Prompt func(ctx context.Context) (string, error)
}

// NewPasscodeAuthenticator returns an authenticator reading its verifier
// from the given keystore.
func NewPasscodeAuthenticator(keys *keystore.Store, prompt func(ctx context.Context) (string, error)) *PasscodeAuthenticator {
	return &PasscodeAuthenticator{keys: keys, Prompt: prompt}
}

// Enroll derives a fresh Argon2id verifier for passcode and stores it,
// replacing any previous enrollment.
func (a *PasscodeAuthenticator) Enroll(passcode string) error {
	salt, err := crypto.GenerateSalt(passcodeSaltLength)
	if err != nil {
		return err
	}

	rec := passcodeRecord{
		Salt: salt,
		Hash: crypto.DeriveKey([]byte(passcode), salt),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: failed to marshal passcode record: %w", err)
	}
	return a.keys.Save(data, PasscodeEntryID)
}

// Available reports whether a passcode verifier is enrolled.
func (a *PasscodeAuthenticator) Available() bool {
	_, ok, err := a.keys.Read(PasscodeEntryID)
	return err == nil && ok
}

// Authenticate prompts for the passcode and verifies it in constant
// time against the enrolled verifier.
func (a *PasscodeAuthenticator) Authenticate(ctx context.Context) error {
	data, ok, err := a.keys.Read(PasscodeEntryID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPasscode
	}

	var rec passcodeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("session: corrupt passcode record: %w", err)
	}

	passcode, err := a.Prompt(ctx)
	if err != nil {
		return err
	}

	hash := crypto.DeriveKey([]byte(passcode), rec.Salt)
	if subtle.ConstantTimeCompare(hash, rec.Hash) != 1 {
		return errors.New("session: wrong passcode")
	}
	return nil
}
