package security

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Mechanism is an HLS authentication mechanism id.
type Mechanism uint8

const (
	// MechanismHMACSHA256 is the manufacturer-specific HLS slot, here
	// HMAC-SHA256 keyed with the HLS secret.
	MechanismHMACSHA256 Mechanism = 2
	MechanismGMAC       Mechanism = 5
	MechanismSHA256     Mechanism = 6
)

// String returns the mechanism name.
func (m Mechanism) String() string {
	switch m {
	case MechanismHMACSHA256:
		return "hls-hmac-sha256"
	case MechanismGMAC:
		return "hls-gmac"
	case MechanismSHA256:
		return "hls-sha256"
	}
	return fmt.Sprintf("mechanism(%d)", uint8(m))
}

// ParseMechanism accepts the names returned by String.
func ParseMechanism(s string) (Mechanism, error) {
	for _, m := range []Mechanism{MechanismHMACSHA256, MechanismGMAC, MechanismSHA256} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMechanism, s)
}

// Challenge length bounds.
const (
	MinChallenge = 8
	MaxChallenge = 64
)

// NewChallenge returns n random bytes for use as an HLS challenge.
func NewChallenge(n int) ([]byte, error) {
	if n < MinChallenge || n > MaxChallenge {
		return nil, ErrInvalidChallenge
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func checkChallenge(c []byte) error {
	if len(c) < MinChallenge || len(c) > MaxChallenge {
		return ErrInvalidChallenge
	}
	return nil
}

// gmacResponseSize is SC || IC || tag.
const gmacResponseSize = HeaderSize + TagSize

func sha256Response(secret, titleA, titleB, answered, issued []byte) []byte {
	h := sha256.New()
	for _, b := range [][]byte{secret, titleA, titleB, answered, issued} {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Respond computes this party's answer f(challenge) to the challenge the
// peer issued. own is the challenge this party issued; only the SHA-256
// mechanism uses it. GMAC responses consume one invocation counter value.
func (c *Context) Respond(m Mechanism, challenge, own []byte) ([]byte, error) {
	if err := checkChallenge(challenge); err != nil {
		return nil, err
	}
	switch m {
	case MechanismHMACSHA256:
		h := hmac.New(sha256.New, c.secret)
		h.Write(challenge)
		return h.Sum(nil), nil
	case MechanismSHA256:
		if len(c.peerSystemTitle) != SystemTitleSize {
			return nil, fmt.Errorf("peer system title: %w", ErrInvalidSystemTitle)
		}
		return sha256Response(c.secret, c.systemTitle, c.peerSystemTitle, challenge, own), nil
	case MechanismGMAC:
		var out []byte
		_, err := c.counter.Use(func(ic uint32) error {
			tag, err := GMAC(c.params(Authentication, c.systemTitle, ic), challenge)
			if err != nil {
				return err
			}
			out = make([]byte, HeaderSize, gmacResponseSize)
			out[0] = byte(Authentication)
			binary.BigEndian.PutUint32(out[1:HeaderSize], ic)
			out = append(out, tag...)
			return nil
		})
		return out, err
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownMechanism, uint8(m))
}

// Verify checks the peer's answer to the challenge own that this party
// issued. peer is the challenge the peer issued. A wrong answer returns
// ErrAuthenticationFailed and the association must not proceed.
func (c *Context) Verify(m Mechanism, own, peer, response []byte) error {
	if err := checkChallenge(own); err != nil {
		return err
	}
	var want []byte
	switch m {
	case MechanismHMACSHA256:
		h := hmac.New(sha256.New, c.secret)
		h.Write(own)
		want = h.Sum(nil)
	case MechanismSHA256:
		if len(c.peerSystemTitle) != SystemTitleSize {
			return fmt.Errorf("peer system title: %w", ErrInvalidSystemTitle)
		}
		want = sha256Response(c.secret, c.peerSystemTitle, c.systemTitle, own, peer)
	case MechanismGMAC:
		if len(c.peerSystemTitle) != SystemTitleSize {
			return fmt.Errorf("peer system title: %w", ErrInvalidSystemTitle)
		}
		if len(response) != gmacResponseSize || SecurityControl(response[0]) != Authentication {
			c.warn("%s: malformed response", m)
			return ErrAuthenticationFailed
		}
		ic := binary.BigEndian.Uint32(response[1:HeaderSize])
		tag, err := GMAC(c.params(Authentication, c.peerSystemTitle, ic), own)
		if err != nil {
			return err
		}
		want = append(bytes.Clone(response[:HeaderSize]), tag...)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMechanism, uint8(m))
	}
	if !hmac.Equal(want, response) {
		c.warn("%s: response mismatch", m)
		return ErrAuthenticationFailed
	}
	return nil
}
