package stomp_ws

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// STOMP 1.2 commands used by the channel.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdDisconnect  = "DISCONNECT"
	cmdMessage     = "MESSAGE"
	cmdError       = "ERROR"
	cmdReceipt     = "RECEIPT"
)

// Frame is a single STOMP frame. Header order on the wire is sorted by key;
// brokers do not care and it keeps encoding deterministic.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

func newFrame(command string, kv ...string) Frame {
	f := Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

func (f Frame) Header(key string) string { return f.Headers[key] }

// Marshal encodes the frame including the trailing NUL.
func (f Frame) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	raw := f.Command == cmdConnect || f.Command == cmdConnected
	for _, k := range keys {
		b.WriteString(escapeHeader(k, raw))
		b.WriteByte(':')
		b.WriteString(escapeHeader(f.Headers[k], raw))
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		if _, ok := f.Headers["content-length"]; !ok {
			b.WriteString("content-length:")
			b.WriteString(strconv.Itoa(len(f.Body)))
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

var errTruncated = errors.New("stomp: truncated frame")

// ParseFrames decodes every frame in one websocket message. Heart-beat EOLs
// between frames are skipped; a message holding only EOLs yields no frames.
func ParseFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	for {
		data = bytes.TrimLeft(data, "\r\n")
		if len(data) == 0 {
			return frames, nil
		}
		f, rest, err := parseFrame(data)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		data = rest
	}
}

func parseFrame(data []byte) (Frame, []byte, error) {
	line, data, ok := cutLine(data)
	if !ok {
		return Frame{}, nil, errTruncated
	}
	f := Frame{Command: line, Headers: make(map[string]string)}
	raw := f.Command == cmdConnect || f.Command == cmdConnected

	for {
		line, data, ok = cutLine(data)
		if !ok {
			return Frame{}, nil, errTruncated
		}
		if line == "" {
			break
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			return Frame{}, nil, fmt.Errorf("stomp: malformed header %q", line)
		}
		k, v = unescapeHeader(k, raw), unescapeHeader(v, raw)
		// repeated headers: the first value wins
		if _, dup := f.Headers[k]; !dup {
			f.Headers[k] = v
		}
	}

	if cl, ok := f.Headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return Frame{}, nil, fmt.Errorf("stomp: bad content-length %q", cl)
		}
		if len(data) < n+1 || data[n] != 0 {
			return Frame{}, nil, errTruncated
		}
		f.Body = data[:n]
		return f, data[n+1:], nil
	}

	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return Frame{}, nil, errTruncated
	}
	f.Body = data[:end]
	return f, data[end+1:], nil
}

func cutLine(data []byte) (string, []byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", nil, false
	}
	line := data[:i]
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line), data[i+1:], true
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\r", "\r", "\\n", "\n", "\\c", ":")
)

// CONNECT and CONNECTED frames are never escaped.
func escapeHeader(s string, raw bool) string {
	if raw {
		return s
	}
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string, raw bool) string {
	if raw {
		return s
	}
	return headerUnescaper.Replace(s)
}

// parseHeartBeat reads a "cx,cy" heart-beat header in milliseconds.
func parseHeartBeat(v string) (sendMs, recvMs int) {
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0
	}
	sendMs, _ = strconv.Atoi(strings.TrimSpace(a))
	recvMs, _ = strconv.Atoi(strings.TrimSpace(b))
	return sendMs, recvMs
}
