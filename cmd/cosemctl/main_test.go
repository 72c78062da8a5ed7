package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = `
name: test-meter
security:
  system_title: "4D4D4D0000BC614E"
  peer_system_title: "4D4D4D0000BC614E"
  block_cipher_key: "000102030405060708090A0B0C0D0E0F"
  authentication_key: "D0D1D2D3D4D5D6D7D8D9DADBDCDDDEDF"
  hls_secret: "31323334353637383930"
  invocation_counter: 19088743
objects:
  - { class: data, name: 0-0:96.14.0.255, type: unsigned, value: 1 }
  - { class: register, name: 1-0:1.8.0.255, type: double-long-unsigned, value: 1000, unit: 30 }
`

type harness struct {
	t     *testing.T
	model string
	state string
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	h := &harness{
		t:     t,
		model: filepath.Join(dir, "meter.yaml"),
		state: filepath.Join(dir, "state.cbor"),
	}
	require.NoError(t, os.WriteFile(h.model, []byte(testModel), 0644))
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--model", h.model, "--state", h.state, "--log-level", "disabled"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDecode(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("decode", "0203 1203E8 0F FE 0A 02 6162")
	require.NoError(t, err)
	assert.Equal(t, `structure[long-unsigned(1000), integer(-2), visible-string("ab")]`+"\n", out)

	_, err = h.run("decode", "12")
	assert.Error(t, err)
}

func TestGetSetPersists(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("get", "register", "1-0:1.8.0.255", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "06000003E8")

	out, err = h.run("set", "data", "0-0:96.14.0.255", "2", "1107")
	require.NoError(t, err)
	assert.Contains(t, out, "success")

	// A new invocation sees the stored state.
	out, err = h.run("get", "1", "0.0.96.14.0.255", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "unsigned(7)")

	_, err = h.run("set", "data", "0-0:96.14.0.255", "2", "120007")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "type-unmatched"), err.Error())

	_, err = h.run("get", "register", "1-0:1.8.0.255", "0")
	assert.Error(t, err)
}

func TestActionAndDescribe(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("action", "register", "1-0:1.8.0.255", "1", "0F00")
	require.NoError(t, err)
	assert.Contains(t, out, "(null)")

	out, err = h.run("describe", "register", "1-0:1.8.0.255")
	require.NoError(t, err)
	assert.Contains(t, out, "double-long-unsigned(0)")
}

func TestCipherRoundTrip(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("cipher", "C0010000080000010000FF0200")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "3001234567"), out)

	// The counter advanced and was kept with the state.
	out, err = h.run("cipher", "C0010000080000010000FF0200")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "3001234568"), out)

	frame := strings.TrimSpace(out)
	out, err = h.run("decipher", frame)
	require.NoError(t, err)
	assert.Equal(t, "C0010000080000010000FF0200\n", out)

	// The accepted counter was kept with the state.
	_, err = h.run("decipher", frame)
	assert.ErrorContains(t, err, "replayed")

	// Authentication only does not satisfy the default policy.
	out, err = h.run("cipher", "--control", "auth", "C001")
	require.NoError(t, err)
	_, err = h.run("decipher", strings.TrimSpace(out))
	assert.ErrorContains(t, err, "decryption failed")

	_, err = h.run("cipher", "--control", "none", "C001")
	assert.Error(t, err)
}

func TestHLS(t *testing.T) {
	h := newHarness(t)
	challenge := "000102030405060708090A0B0C0D0E0F"
	peer := "F0F1F2F3F4F5F6F7"
	out, err := h.run("hls", "respond", "hls-hmac-sha256", challenge)
	require.NoError(t, err)

	// The device checks its own answer as if the peer had sent it.
	out, err = h.run("hls", "verify", "hls-hmac-sha256", challenge, peer, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "authenticated\n", out)

	_, err = h.run("hls", "verify", "hls-hmac-sha256", challenge, peer, "00")
	assert.Error(t, err)

	_, err = h.run("hls", "respond", "hls-none", challenge)
	assert.Error(t, err)

	out, err = h.run("hls", "challenge", "8")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 16)
}

func TestAccessList(t *testing.T) {
	h := newHarness(t)
	model := testModel + `
access:
  - { privilege: view, auth: public, clients: [16] }
  - { privilege: manage, auth: hls, clients: [1] }
`
	require.NoError(t, os.WriteFile(h.model, []byte(model), 0644))

	_, err := h.run("get", "data", "0-0:96.14.0.255", "2")
	require.NoError(t, err)

	_, err = h.run("set", "data", "0-0:96.14.0.255", "2", "1102")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	out, err := h.run("set", "--client", "1", "--authenticated", "data", "0-0:96.14.0.255", "2", "1102")
	require.NoError(t, err)
	assert.Contains(t, out, "success")
}

func TestTick(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("tick", "--at", "2026-10-17T06:00:00Z")
	require.NoError(t, err)
	_, err = h.run("tick", "--at", "not a time")
	assert.Error(t, err)
}

func TestEnvironment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("COSEM_MODEL", h.model)
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"get", "data", "0-0:96.14.0.255", "2"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "unsigned(1)")

	t.Setenv("COSEM_LOG_LEVEL", "loud")
	cmd = newRootCommand()
	cmd.SetArgs([]string{"decode", "00"})
	assert.Error(t, cmd.Execute())
}
