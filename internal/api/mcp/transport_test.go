package mcp_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/api/mcp"
	"github.com/scrypster/memora/internal/logging"
)

func TestStdioTransport_LineFraming(t *testing.T) {
	srv, _ := newTestServer(t)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"list_agents","arguments":{}}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	tr := mcp.NewStdioTransport(srv, strings.NewReader(in), &out, logging.Discard())
	require.NoError(t, tr.Serve(context.Background()))

	var ids []float64
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp mcp.JSONRPCResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), scanner.Text())
		assert.Nil(t, resp.Error)
		ids = append(ids, resp.ID.(float64))
	}
	assert.Equal(t, []float64{1, 2, 3}, ids, "one line per request, none for the notification")
}

func TestStdioTransport_StopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mcp.NewStdioTransport(srv, pr, io.Discard, logging.Discard()).Serve(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop")
	}
}

func TestStdioTransport_ParseErrorKeepsServing(t *testing.T) {
	srv, _ := newTestServer(t)
	in := "garbage\n" + `{"jsonrpc":"2.0","id":9,"method":"ping"}` + "\n"

	var out bytes.Buffer
	require.NoError(t, mcp.NewStdioTransport(srv, strings.NewReader(in), &out, logging.Discard()).Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"code":-32700`)
	assert.Contains(t, lines[1], `"id":9`)
}
