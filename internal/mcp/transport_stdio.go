package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"stockd/internal/logging"
)

// DefaultMaxRequestBytes bounds a single request line.
const DefaultMaxRequestBytes = 1 << 20

// StdioServer reads newline-delimited requests and writes one response line
// per request, strictly in arrival order. Reading runs one line ahead of
// dispatch; only one request is ever being dispatched.
type StdioServer struct {
	dispatcher *Dispatcher
	maxLine    int
}

// ServerOption configures a StdioServer.
type ServerOption func(*StdioServer)

// WithMaxRequestBytes bounds request lines; longer lines are answered with an
// error and skipped.
func WithMaxRequestBytes(n int) ServerOption {
	return func(s *StdioServer) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// NewStdioServer creates a server dispatching to d.
func NewStdioServer(d *Dispatcher, opts ...ServerOption) *StdioServer {
	s := &StdioServer{dispatcher: d, maxLine: DefaultMaxRequestBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// frame is one input line handed from the reader to the dispatch loop.
type frame struct {
	line     []byte
	tooLarge bool
}

// Serve processes requests from r until end of input or ctx is cancelled.
// End of input is not an error. If r is an io.Closer it is closed before
// Serve returns.
//
// On cancellation Serve returns without waiting for a read in progress: a
// terminal or blocking pipe on stdin does not unblock on Close, and the
// reader goroutine exits on its own at the next input or end of input.
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	logging.Transport("Stdio server started (max request %d bytes)", s.maxLine)

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	frames := make(chan frame)
	readDone := make(chan error, 1)
	go func() {
		defer close(frames)
		readDone <- s.readLoop(readCtx, r, frames)
	}()

	err := s.dispatchLoop(ctx, frames, w)
	stopReading()
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
	if err == nil {
		// frames was closed, so the reader has already finished.
		err = <-readDone
	}

	if err != nil && ctx.Err() != nil {
		logging.Transport("Stdio server stopped: %v", ctx.Err())
		return ctx.Err()
	}
	if err != nil {
		logging.Get(logging.CategoryTransport).Error("Stdio server failed: %v", err)
		return err
	}
	logging.Transport("Stdio server reached end of input")
	return nil
}

// readLoop splits r into lines and hands them over one at a time.
func (s *StdioServer) readLoop(ctx context.Context, r io.Reader, frames chan<- frame) error {
	br := bufio.NewReader(r)
	for {
		line, tooLarge, err := readLine(br, s.maxLine)
		if len(line) > 0 || tooLarge {
			select {
			case frames <- frame{line: line, tooLarge: tooLarge}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read request: %w", err)
		}
	}
}

// readLine returns the next line including its terminator. Lines longer than
// max are drained and reported as tooLarge with no data.
func readLine(br *bufio.Reader, max int) (line []byte, tooLarge bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLarge {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > max {
				tooLarge = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLarge, err
	}
}

// dispatchLoop answers frames in order, flushing after every response.
func (s *StdioServer) dispatchLoop(ctx context.Context, frames <-chan frame, w io.Writer) error {
	bw := bufio.NewWriter(w)

	for {
		var f frame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-frames:
			if !ok {
				return nil
			}
			f = next
		}

		var resp *Response
		if f.tooLarge {
			logging.Get(logging.CategoryTransport).Warn("Request exceeds %d bytes, skipped", s.maxLine)
			resp = Failure(nil, newError(KindProtocol, "Request too large (limit %d bytes)", s.maxLine))
		} else {
			line := bytes.TrimSpace(f.line)
			if len(line) == 0 {
				continue
			}
			logging.TransportDebug("Received request: %s", line)
			resp = s.dispatcher.HandleLine(ctx, line)
		}

		if _, err := bw.Write(EncodeResponse(resp)); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("failed to flush response: %w", err)
		}
	}
}

// EncodeResponse renders resp as one newline-terminated line. If the result cannot be encoded
// the client still receives an error envelope with the same id.
func EncodeResponse(resp *Response) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		logging.Get(logging.CategoryTransport).Error("Failed to encode response: %v", err)
		buf.Reset()
		_ = enc.Encode(Failure(resp.ID, newError(KindInternal, "Internal error: %v", err)))
	}
	return buf.Bytes()
}
