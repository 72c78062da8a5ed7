package security

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/pion/logging"
)

// Config configures a security Context.
type Config struct {
	// SystemTitle identifies this party. Required, 8 bytes.
	SystemTitle []byte

	// PeerSystemTitle identifies the other party. Needed to decrypt and to
	// verify GMAC and SHA-256 authentication.
	PeerSystemTitle []byte

	// BlockCipherKey is the global unicast encryption key. Required.
	BlockCipherKey []byte

	// AuthenticationKey is the authentication key. Required.
	AuthenticationKey []byte

	// HLSSecret is the shared secret for HLS mechanisms other than GMAC.
	// Defaults to AuthenticationKey.
	HLSSecret []byte

	// RequiredControl is the security control every received frame must
	// carry. It must include authentication. Defaults to
	// AuthenticatedEncryption.
	RequiredControl SecurityControl

	// InvocationCounter is the next counter value to send.
	InvocationCounter uint32

	// PersistCounter stores the next invocation counter after each use.
	// Optional: without it the host must persist Context.Counter itself.
	PersistCounter func(next uint32) error

	// LoggerFactory is the factory for creating loggers.
	// Optional: if nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.HLSSecret == nil {
		c.HLSSecret = c.AuthenticationKey
	}
	if c.RequiredControl == 0 {
		c.RequiredControl = AuthenticatedEncryption
	}
}

// Validate checks key and system title sizes.
func (c *Config) Validate() error {
	if len(c.SystemTitle) != SystemTitleSize {
		return fmt.Errorf("system title: %w", ErrInvalidSystemTitle)
	}
	if c.PeerSystemTitle != nil && len(c.PeerSystemTitle) != SystemTitleSize {
		return fmt.Errorf("peer system title: %w", ErrInvalidSystemTitle)
	}
	if len(c.BlockCipherKey) != KeySize {
		return fmt.Errorf("block cipher key: %w", ErrInvalidKey)
	}
	if len(c.AuthenticationKey) != KeySize {
		return fmt.Errorf("authentication key: %w", ErrInvalidKey)
	}
	if c.RequiredControl == 0 {
		return nil
	}
	if err := c.RequiredControl.Validate(); err != nil {
		return fmt.Errorf("required control: %w", err)
	}
	if !c.RequiredControl.Authenticated() {
		return fmt.Errorf("required control: %w: 0x%02X lacks authentication", ErrInvalidSecurityControl, uint8(c.RequiredControl))
	}
	return nil
}

// Context holds the keys and counters of one secured association.
// Encrypt and Decrypt are safe for concurrent use.
type Context struct {
	systemTitle     []byte
	peerSystemTitle []byte
	ek              []byte
	ak              []byte
	secret          []byte
	required        SecurityControl
	counter         *InvocationCounter
	received        *ReceptionState
	log             logging.LeveledLogger
}

// New creates a security Context.
func New(cfg Config) (*Context, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		systemTitle:     bytes.Clone(cfg.SystemTitle),
		peerSystemTitle: bytes.Clone(cfg.PeerSystemTitle),
		ek:              bytes.Clone(cfg.BlockCipherKey),
		ak:              bytes.Clone(cfg.AuthenticationKey),
		secret:          bytes.Clone(cfg.HLSSecret),
		required:        cfg.RequiredControl,
		counter:         NewInvocationCounter(cfg.InvocationCounter, cfg.PersistCounter),
		received:        NewReceptionStateEmpty(),
	}
	if cfg.LoggerFactory != nil {
		c.log = cfg.LoggerFactory.NewLogger("security")
	}
	return c, nil
}

// SystemTitle returns this party's system title.
func (c *Context) SystemTitle() []byte { return bytes.Clone(c.systemTitle) }

// Counter returns the send invocation counter.
func (c *Context) Counter() *InvocationCounter { return c.counter }

// RequiredControl returns the security control received frames must carry.
func (c *Context) RequiredControl() SecurityControl { return c.required }

// Received returns the reception state used for replay detection.
func (c *Context) Received() *ReceptionState { return c.received }

func (c *Context) params(sc SecurityControl, title []byte, ic uint32) Params {
	return Params{
		Control:           sc,
		SystemTitle:       title,
		InvocationCounter: ic,
		BlockCipherKey:    c.ek,
		AuthenticationKey: c.ak,
	}
}

// Encrypt protects apdu with sc and returns SC || IC || payload. The
// invocation counter advances exactly once per successful call.
func (c *Context) Encrypt(sc SecurityControl, apdu []byte) ([]byte, error) {
	var frame []byte
	ic, err := c.counter.Use(func(ic uint32) error {
		payload, err := Seal(c.params(sc, c.systemTitle, ic), apdu)
		if err != nil {
			return err
		}
		frame = make([]byte, HeaderSize, HeaderSize+len(payload))
		frame[0] = byte(sc)
		binary.BigEndian.PutUint32(frame[1:HeaderSize], ic)
		frame = append(frame, payload...)
		return nil
	})
	if err != nil {
		if c.log != nil {
			c.log.Warnf("encrypt failed: %v", err)
		}
		return nil, err
	}
	if c.log != nil {
		c.log.Tracef("encrypted %d bytes, sc=0x%02X ic=%d", len(apdu), uint8(sc), ic)
	}
	return frame, nil
}

// Decrypt verifies and unprotects a frame produced by the peer's Encrypt.
// A frame whose security control differs from the required one, or that
// fails its integrity check, returns ErrDecryptionFailed; a counter at or
// below the last accepted one returns ErrReplay. Neither returns any
// plaintext or consumes the counter.
func (c *Context) Decrypt(frame []byte) ([]byte, error) {
	if len(c.peerSystemTitle) != SystemTitleSize {
		return nil, fmt.Errorf("peer system title: %w", ErrInvalidSystemTitle)
	}
	if len(frame) < HeaderSize {
		return nil, ErrFrameTooShort
	}
	sc := SecurityControl(frame[0])
	ic := binary.BigEndian.Uint32(frame[1:HeaderSize])
	if sc != c.required {
		c.warn("rejected frame with ic=%d: sc=0x%02X, want 0x%02X", ic, uint8(sc), uint8(c.required))
		return nil, ErrDecryptionFailed
	}
	if err := c.received.Check(ic); err != nil {
		c.warn("rejected frame with ic=%d: %v", ic, err)
		return nil, err
	}
	pt, err := Open(c.params(sc, c.peerSystemTitle, ic), frame[HeaderSize:])
	if err != nil {
		c.warn("rejected frame with ic=%d: %v", ic, err)
		return nil, err
	}
	if err := c.received.Accept(ic); err != nil {
		c.warn("rejected frame with ic=%d: %v", ic, err)
		return nil, err
	}
	return pt, nil
}

func (c *Context) warn(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Warnf(format, args...)
	}
}

// String identifies the context by its system titles.
func (c *Context) String() string {
	return fmt.Sprintf("security(%s -> %s)", hex.EncodeToString(c.systemTitle), hex.EncodeToString(c.peerSystemTitle))
}
