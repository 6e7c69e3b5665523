package stomp_ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTripEscapesHeaders(t *testing.T) {
	f := newFrame(cmdMessage, "destination", "/topic/match/7", "note", "a:b\nc\\d")
	f.Body = []byte(`{"type":"GOAL"}`)

	frames, err := ParseFrames(f.Marshal())
	require.NoError(t, err)
	require.Len(t, frames, 1)
	got := frames[0]
	assert.Equal(t, cmdMessage, got.Command)
	assert.Equal(t, "a:b\nc\\d", got.Header("note"))
	assert.Equal(t, "/topic/match/7", got.Header("destination"))
	assert.Equal(t, `{"type":"GOAL"}`, string(got.Body))
}

func TestConnectFramesAreNotEscaped(t *testing.T) {
	f := newFrame(cmdConnect, "host", "a:b")
	assert.Contains(t, string(f.Marshal()), "host:a:b\n")
}

func TestParseFramesSkipsHeartbeats(t *testing.T) {
	frames, err := ParseFrames([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = ParseFrames([]byte("\r\n\nRECEIPT\nreceipt-id:1\n\n\x00\nMESSAGE\ndestination:/x\n\nhi\x00\n"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, cmdReceipt, frames[0].Command)
	assert.Equal(t, "hi", string(frames[1].Body))
}

func TestParseFramesContentLength(t *testing.T) {
	frames, err := ParseFrames([]byte("MESSAGE\ncontent-length:3\n\na\x00b\x00"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a\x00b"), frames[0].Body)
}

func TestParseFramesFirstHeaderWins(t *testing.T) {
	frames, err := ParseFrames([]byte("MESSAGE\nfoo:1\nfoo:2\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, "1", frames[0].Header("foo"))
}

func TestParseFramesErrors(t *testing.T) {
	_, err := ParseFrames([]byte("MESSAGE\ndestination:/x\n\nno terminator"))
	assert.ErrorIs(t, err, errTruncated)

	_, err = ParseFrames([]byte("MESSAGE\nbadheader\n\n\x00"))
	assert.Error(t, err)

	_, err = ParseFrames([]byte("MESSAGE\ncontent-length:x\n\n\x00"))
	assert.Error(t, err)
}

func TestNegotiateHeartbeat(t *testing.T) {
	send, read := negotiate(10*time.Second, "0,0")
	assert.Zero(t, send)
	assert.Zero(t, read)

	send, read = negotiate(10*time.Second, "20000,5000")
	assert.Equal(t, 10*time.Second, send)
	assert.Equal(t, 60*time.Second, read)

	send, read = negotiate(0, "10000,10000")
	assert.Zero(t, send)
	assert.Zero(t, read)
}
