package security

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientTitle = []byte("CLI\x00\x00\x00\x00\x01")
	serverTitle = []byte{0x4D, 0x4D, 0x4D, 0x00, 0x00, 0xBC, 0x61, 0x4E}
)

func pair(t *testing.T) (client, server *Context) {
	t.Helper()
	ek, _ := hex.DecodeString(vectorEK)
	ak, _ := hex.DecodeString(vectorAK)
	var err error
	client, err = New(Config{
		SystemTitle:       clientTitle,
		PeerSystemTitle:   serverTitle,
		BlockCipherKey:    ek,
		AuthenticationKey: ak,
		InvocationCounter: 1,
		LoggerFactory:     logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	server, err = New(Config{
		SystemTitle:       serverTitle,
		PeerSystemTitle:   clientTitle,
		BlockCipherKey:    ek,
		AuthenticationKey: ak,
		InvocationCounter: vectorIC,
	})
	require.NoError(t, err)
	return client, server
}

func TestContext_EncryptMatchesVector(t *testing.T) {
	_, server := pair(t)
	frame, err := server.Encrypt(AuthenticatedEncryption, mustHex(t, vectorPlaintext))
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "3001234567"+vectorCipher+vectorTag), frame)
	assert.Equal(t, uint32(vectorIC+1), server.Counter().Next())
}

func TestContext_RoundTrip(t *testing.T) {
	client, _ := pair(t)
	apdu := []byte{0xC0, 0x01, 0xC1, 0x00, 0x03, 0x01, 0x00, 0x01, 0x08, 0x00, 0xFF, 0x02, 0x00}

	for _, sc := range []SecurityControl{Authentication, AuthenticatedEncryption} {
		server := receiver(t, sc)
		frame, err := client.Encrypt(sc, apdu)
		require.NoError(t, err)
		got, err := server.Decrypt(frame)
		require.NoError(t, err, "sc=0x%02X", uint8(sc))
		assert.Equal(t, apdu, got)
		last, ok := server.Received().Last()
		assert.True(t, ok)
		assert.Equal(t, client.Counter().Next()-1, last)
	}
	assert.Equal(t, uint32(3), client.Counter().Next())

	// Encryption-only frames can be produced but are never accepted.
	frame, err := client.Encrypt(Encryption, apdu)
	require.NoError(t, err)
	_, err = receiver(t, AuthenticatedEncryption).Decrypt(frame)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func receiver(t *testing.T, required SecurityControl) *Context {
	t.Helper()
	ek, _ := hex.DecodeString(vectorEK)
	ak, _ := hex.DecodeString(vectorAK)
	c, err := New(Config{
		SystemTitle:       serverTitle,
		PeerSystemTitle:   clientTitle,
		BlockCipherKey:    ek,
		AuthenticationKey: ak,
		RequiredControl:   required,
	})
	require.NoError(t, err)
	return c
}

func TestContext_DecryptRejectsControlDowngrade(t *testing.T) {
	client, server := pair(t)
	assert.Equal(t, AuthenticatedEncryption, server.RequiredControl())

	frame, err := client.Encrypt(AuthenticatedEncryption, []byte{0xC0, 0x01, 0xC1, 0x00, 0x03})
	require.NoError(t, err)

	for _, sc := range []SecurityControl{Encryption, Authentication} {
		forged := bytes.Clone(frame)
		forged[0] = byte(sc)
		forged[HeaderSize] ^= 0x01
		pt, err := server.Decrypt(forged)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "sc=0x%02X", uint8(sc))
		assert.Nil(t, pt)
	}
	_, ok := server.Received().Last()
	assert.False(t, ok)

	// The genuine frame still goes through.
	pt, err := server.Decrypt(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x01, 0xC1, 0x00, 0x03}, pt)

	// An authentication-only receiver refuses authenticated encryption.
	frame, err = client.Encrypt(AuthenticatedEncryption, []byte{0xC0})
	require.NoError(t, err)
	_, err = receiver(t, Authentication).Decrypt(frame)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestContext_DecryptRejectsTamperAndReplay(t *testing.T) {
	client, server := pair(t)
	frame, err := client.Encrypt(AuthenticatedEncryption, []byte{0xC0, 0x01, 0x81})
	require.NoError(t, err)

	tampered := bytes.Clone(frame)
	tampered[len(tampered)-1] ^= 0x80
	pt, err := server.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Nil(t, pt)

	// A forged frame does not consume the counter.
	_, err = server.Decrypt(frame)
	require.NoError(t, err)

	_, err = server.Decrypt(frame)
	assert.ErrorIs(t, err, ErrReplay)

	_, err = server.Decrypt(frame[:3])
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestContext_EncryptRejectsBadControl(t *testing.T) {
	client, _ := pair(t)
	_, err := client.Encrypt(0x00, []byte{1})
	assert.ErrorIs(t, err, ErrInvalidSecurityControl)
	assert.Equal(t, uint32(1), client.Counter().Next())
}

func TestContext_PersistCounter(t *testing.T) {
	ek, _ := hex.DecodeString(vectorEK)
	var stored uint32
	c, err := New(Config{
		SystemTitle:       serverTitle,
		BlockCipherKey:    ek,
		AuthenticationKey: ek,
		InvocationCounter: 41,
		PersistCounter:    func(next uint32) error { stored = next; return nil },
	})
	require.NoError(t, err)
	_, err = c.Encrypt(AuthenticatedEncryption, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), stored)

	_, err = c.Decrypt([]byte{0x30, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidSystemTitle)
}

func TestContext_ConcurrentEncrypt(t *testing.T) {
	report := test.CheckRoutines(t)
	defer report()

	client, server := pair(t)
	const n = 64
	frames := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := client.Encrypt(AuthenticatedEncryption, []byte{byte(i)})
			if err == nil {
				frames[i] = f
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, f := range frames {
		require.NotNil(t, f, "frame %d", i)
		ic := string(f[1:HeaderSize])
		assert.False(t, seen[ic], "counter reused")
		seen[ic] = true
	}
	// Frames decrypt in counter order.
	for ic := uint32(1); ic <= n; ic++ {
		for _, f := range frames {
			if f[4] == byte(ic) && f[3] == 0 {
				_, err := server.Decrypt(f)
				require.NoError(t, err)
			}
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	ek, _ := hex.DecodeString(vectorEK)
	_, err := New(Config{SystemTitle: []byte{1}, BlockCipherKey: ek, AuthenticationKey: ek})
	assert.ErrorIs(t, err, ErrInvalidSystemTitle)
	_, err = New(Config{SystemTitle: serverTitle, BlockCipherKey: ek[:8], AuthenticationKey: ek})
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = New(Config{SystemTitle: serverTitle, PeerSystemTitle: []byte{1, 2}, BlockCipherKey: ek, AuthenticationKey: ek})
	assert.ErrorIs(t, err, ErrInvalidSystemTitle)
	_, err = New(Config{SystemTitle: serverTitle, BlockCipherKey: ek, AuthenticationKey: ek, RequiredControl: Encryption})
	assert.ErrorIs(t, err, ErrInvalidSecurityControl)
	_, err = New(Config{SystemTitle: serverTitle, BlockCipherKey: ek, AuthenticationKey: ek, RequiredControl: AuthenticatedEncryption | BroadcastKey})
	assert.ErrorIs(t, err, ErrInvalidSecurityControl)
}

func TestHLS(t *testing.T) {
	for _, m := range []Mechanism{MechanismHMACSHA256, MechanismGMAC, MechanismSHA256} {
		t.Run(m.String(), func(t *testing.T) {
			client, server := pair(t)
			ctos, err := NewChallenge(16)
			require.NoError(t, err)
			stoc, err := NewChallenge(32)
			require.NoError(t, err)

			// Client proves itself by answering the server's challenge.
			resp, err := client.Respond(m, stoc, ctos)
			require.NoError(t, err)
			require.NoError(t, server.Verify(m, stoc, ctos, resp))

			// And the server answers the client's.
			resp, err = server.Respond(m, ctos, stoc)
			require.NoError(t, err)
			require.NoError(t, client.Verify(m, ctos, stoc, resp))

			bad := bytes.Clone(resp)
			bad[len(bad)-1] ^= 0xFF
			assert.ErrorIs(t, client.Verify(m, ctos, stoc, bad), ErrAuthenticationFailed)

			other, err := NewChallenge(16)
			require.NoError(t, err)
			assert.ErrorIs(t, client.Verify(m, other, stoc, resp), ErrAuthenticationFailed)
		})
	}
}

func TestHLS_GMACConsumesCounter(t *testing.T) {
	client, _ := pair(t)
	challenge := bytes.Repeat([]byte{0xAA}, 16)
	resp, err := client.Respond(MechanismGMAC, challenge, nil)
	require.NoError(t, err)
	assert.Len(t, resp, HeaderSize+TagSize)
	assert.Equal(t, byte(Authentication), resp[0])
	assert.Equal(t, []byte{0, 0, 0, 1}, resp[1:HeaderSize])
	assert.Equal(t, uint32(2), client.Counter().Next())
}

func TestHLS_Errors(t *testing.T) {
	client, _ := pair(t)
	_, err := client.Respond(MechanismHMACSHA256, []byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidChallenge)
	_, err = client.Respond(Mechanism(9), bytes.Repeat([]byte{1}, 8), nil)
	assert.ErrorIs(t, err, ErrUnknownMechanism)
	_, err = NewChallenge(65)
	assert.ErrorIs(t, err, ErrInvalidChallenge)

	m, err := ParseMechanism("hls-gmac")
	require.NoError(t, err)
	assert.Equal(t, MechanismGMAC, m)
	_, err = ParseMechanism("lls")
	assert.True(t, errors.Is(err, ErrUnknownMechanism))
}

func TestDeriveKeys(t *testing.T) {
	master := bytes.Repeat([]byte{0x42}, 32)
	a, err := DeriveKeys(master, serverTitle)
	require.NoError(t, err)
	assert.Len(t, a.BlockCipherKey, KeySize)
	assert.Len(t, a.AuthenticationKey, KeySize)
	assert.NotEqual(t, a.BlockCipherKey, a.AuthenticationKey)

	again, err := DeriveKeys(master, serverTitle)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	b, err := DeriveKeys(master, clientTitle)
	require.NoError(t, err)
	assert.NotEqual(t, a.BlockCipherKey, b.BlockCipherKey)

	_, err = DeriveKeys(master[:8], serverTitle)
	assert.Error(t, err)
	_, err = DeriveKeys(master, serverTitle[:4])
	assert.ErrorIs(t, err, ErrInvalidSystemTitle)
}
