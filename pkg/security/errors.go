package security

import "errors"

// Security layer errors.
var (
	// Input errors
	ErrInvalidKey             = errors.New("security: invalid key, must be 16 bytes")
	ErrInvalidSystemTitle     = errors.New("security: invalid system title, must be 8 bytes")
	ErrInvalidSecurityControl = errors.New("security: unsupported security control")
	ErrFrameTooShort          = errors.New("security: ciphered frame too short")
	ErrInvalidChallenge       = errors.New("security: challenge must be 8 to 64 bytes")
	ErrUnknownMechanism       = errors.New("security: unknown authentication mechanism")

	// Verification errors. Both end the secured association.
	ErrDecryptionFailed     = errors.New("security: decryption failed")
	ErrAuthenticationFailed = errors.New("security: authentication failed")

	// Counter errors
	ErrReplay           = errors.New("security: replayed invocation counter")
	ErrCounterExhausted = errors.New("security: invocation counter exhausted")
)
