// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sse is a small, provider-agnostic Server-Sent Events reader. It
// exposes frames ("event:"/"data:" pairs) as a pure function of bytes read
// so far, with no knowledge of chat-completion semantics; the llm package
// layers delta-merging on top.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// Frame is one decoded SSE event. Event is empty when the source omitted
// an "event:" line, in which case callers fall back to a field inside
// Data (as OpenAI-compatible chunks do).
type Frame struct {
	Event string
	Data  []byte
}

// Reader decodes an SSE byte stream into Frames. It reads with
// bufio.Reader.ReadBytes rather than bufio.Scanner so a single data line
// larger than Scanner's fixed token buffer (e.g. a large tool result
// embedded in one chunk) never truncates or errors.
type Reader struct {
	r        *bufio.Reader
	event    string
	data     bytes.Buffer
	sawField bool
}

// NewReader wraps body (typically an HTTP response body) as an SSE Reader.
func NewReader(body io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(body)}
}

// Next returns the next Frame, io.EOF when the stream ends cleanly, or a
// read error. A frame is emitted on a blank line per the SSE spec; lines
// beginning "data:" accumulate (multi-line data joined with "\n"), lines
// beginning "event:" set the frame's event name, and any other line
// (including SSE comments starting with ":") is ignored.
func (s *Reader) Next() (Frame, error) {
	for {
		line, err := s.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return Frame{}, err
		}
		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) == 0:
			if s.sawField {
				f := Frame{Event: s.event, Data: append([]byte(nil), s.data.Bytes()...)}
				s.event = ""
				s.data.Reset()
				s.sawField = false
				return f, nil
			}
			// blank line with nothing buffered: skip
		case bytes.HasPrefix(line, []byte("event:")):
			s.event = string(bytes.TrimSpace(line[len("event:"):]))
			s.sawField = true
		case bytes.HasPrefix(line, []byte("data:")):
			if s.data.Len() > 0 {
				s.data.WriteByte('\n')
			}
			s.data.Write(bytes.TrimSpace(line[len("data:"):]))
			s.sawField = true
		case bytes.HasPrefix(line, []byte(":")):
			// comment / keep-alive
		default:
			// unrecognized field, ignore per spec
		}

		if err != nil {
			if s.sawField {
				f := Frame{Event: s.event, Data: append([]byte(nil), s.data.Bytes()...)}
				s.sawField = false
				return f, nil
			}
			return Frame{}, err
		}
	}
}

// IsDone reports whether data is the sentinel "[DONE]" terminator used by
// OpenAI-compatible streaming APIs.
func IsDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]"))
}
