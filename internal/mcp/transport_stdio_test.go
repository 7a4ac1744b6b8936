package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func serveString(t *testing.T, s *StdioServer, input string) []*wireResponse {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(input), &out))
	return decodeLines(t, out.String())
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

func decodeLines(t *testing.T, out string) []*wireResponse {
	t.Helper()
	var resps []*wireResponse
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r wireResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "line: %s", sc.Text())
		resps = append(resps, &r)
	}
	require.NoError(t, sc.Err())
	return resps
}

func TestServeAnswersInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))
	var in strings.Builder
	for i := 1; i <= 50; i++ {
		method := "get_all_stocks"
		if i%3 == 0 {
			method = "bogus"
		}
		in.WriteString(`{"jsonrpc":"2.0","id":` + itoa(i) + `,"method":"` + method + `"}` + "\n")
	}

	resps := serveString(t, s, in.String())
	require.Len(t, resps, 50)
	for i, r := range resps {
		assert.Equal(t, itoa(i+1), string(r.ID))
		assert.Equal(t, (i+1)%3 == 0, r.Error != nil, "id %d", i+1)
	}
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func TestServeSkipsBlankLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))
	resps := serveString(t, s, "\n   \n"+`{"id":1,"method":"get_all_stocks"}`+"\r\n\n\t\n")
	require.Len(t, resps, 1)
	assert.Equal(t, "1", string(resps[0].ID))
}

func TestServeFinalLineWithoutNewline(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))
	resps := serveString(t, s, `{"id":1,"method":"get_all_stocks"}`+"\n"+`{"id":2,"method":"get_all_stocks"}`)
	require.Len(t, resps, 2)
	assert.Equal(t, "2", string(resps[1].ID))
}

func TestServeMalformedLineContinues(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))
	resps := serveString(t, s, "{oops\n"+`{"id":2,"method":"get_stock_by_code","params":{"code":"1301_T"}}`+"\n")
	require.Len(t, resps, 2)

	require.NotNil(t, resps[0].Error)
	assert.Equal(t, "null", string(resps[0].ID))
	assert.Equal(t, ErrorCode, resps[0].Error.Code)

	assert.Nil(t, resps[1].Error)
	assert.JSONEq(t, toyota, string(resps[1].Result))
}

func TestServeOversizedLine(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"), WithMaxRequestBytes(64))
	big := `{"id":1,"method":"get_stock_by_code","params":{"code":"` + strings.Repeat("x", 8192) + `"}}`
	resps := serveString(t, s, big+"\n"+`{"id":2,"method":"get_all_stocks"}`+"\n")
	require.Len(t, resps, 2)

	require.NotNil(t, resps[0].Error)
	assert.Equal(t, "null", string(resps[0].ID))
	assert.Equal(t, "Request too large (limit 64 bytes)", resps[0].Error.Message)
	assert.Equal(t, "2", string(resps[1].ID))
	assert.Nil(t, resps[1].Error)
}

func TestReadLine(t *testing.T) {
	br := bufio.NewReaderSize(strings.NewReader("short\n"+strings.Repeat("y", 100)+"\nlast"), 16)

	line, tooLarge, err := readLine(br, 32)
	require.NoError(t, err)
	assert.False(t, tooLarge)
	assert.Equal(t, "short\n", string(line))

	line, tooLarge, err = readLine(br, 32)
	require.NoError(t, err)
	assert.True(t, tooLarge)
	assert.Nil(t, line)

	line, tooLarge, err = readLine(br, 32)
	assert.Equal(t, io.EOF, err)
	assert.False(t, tooLarge)
	assert.Equal(t, "last", string(line))
}

func TestReadLineLongButWithinLimit(t *testing.T) {
	want := strings.Repeat("z", 100)
	br := bufio.NewReaderSize(strings.NewReader(want+"\n"), 16)
	line, tooLarge, err := readLine(br, 200)
	require.NoError(t, err)
	assert.False(t, tooLarge)
	assert.Equal(t, want+"\n", string(line))
}

func TestServeStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	outR, outW := io.Pipe()
	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, pr, outW)
	}()

	_, err := pw.Write([]byte(`{"id":1,"method":"get_all_stocks"}` + "\n"))
	require.NoError(t, err)

	first, err := bufio.NewReader(outR).ReadBytes('\n')
	require.NoError(t, err)
	assert.Contains(t, string(first), `"id":1`)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	_ = pw.Close()
	_ = outR.Close()
}

func TestServeWriteFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(context.Background(), pr, failingWriter{})
	}()

	_, err := pw.Write([]byte(`{"id":1,"method":"get_all_stocks"}` + "\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken pipe")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after a write failure")
	}
	_ = pw.Close()
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

// blockingStdin mimics stdin on a terminal or blocking pipe: Close does not
// interrupt a pending Read.
type blockingStdin struct {
	release chan struct{}
	closed  chan struct{}
}

func newBlockingStdin() *blockingStdin {
	return &blockingStdin{release: make(chan struct{}), closed: make(chan struct{})}
}

func (b *blockingStdin) Read(p []byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func (b *blockingStdin) Close() error {
	close(b.closed)
	return nil
}

func TestServeReturnsOnCancelWithUninterruptibleReader(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := newBlockingStdin()
	defer close(in.release)

	s := NewStdioServer(newTestDispatcher(t, "["+toyota+"]"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		done <- s.Serve(ctx, in, &out)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve blocked on a read that Close cannot interrupt")
	}

	select {
	case <-in.closed:
	default:
		t.Fatal("reader was not closed")
	}
	assert.Empty(t, out.String())
}
