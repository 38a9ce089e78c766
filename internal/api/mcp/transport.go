package mcp

// Protocol rules:
//   - Each JSON-RPC request arrives as a single newline-terminated line on
//     stdin.
//   - Each JSON-RPC response is written as a single newline-terminated line to
//     stdout.
//   - All diagnostic output goes to stderr. Stray bytes on stdout corrupt the
//     framing.

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 4 * 1024 * 1024

// StdioTransport reads line-delimited JSON-RPC 2.0 requests from an io.Reader
// and writes responses to an io.Writer.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	logger *log.Logger
}

// NewStdioTransport constructs a StdioTransport that reads from in and writes
// to out. logger must not write to out.
//
//	t := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout, logger)
//	t.Serve(ctx)
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer, logger *log.Logger) *StdioTransport {
	if logger == nil {
		logger = log.Default()
	}
	return &StdioTransport{
		server: srv,
		in:     in,
		out:    out,
		logger: logger.With("component", "mcp-stdio"),
	}
}

// Serve processes requests in arrival order until in is closed or ctx is
// cancelled. A clean EOF returns nil.
func (t *StdioTransport) Serve(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	// Scanning blocks on stdin, so it runs apart from the dispatch loop to
	// keep cancellation responsive.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("context cancelled, shutting down")
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					t.logger.Error("stdin scanner error", "err", err)
					return fmt.Errorf("stdin scanner: %w", err)
				}
				t.logger.Info("stdin closed, shutting down")
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if err := t.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (t *StdioTransport) handle(ctx context.Context, line []byte) error {
	resp, err := t.server.HandleRequest(ctx, line)
	if err != nil {
		t.logger.Error("handler error", "err", err)
		resp = internalErrorResponse(line, err)
	}
	if resp == nil {
		return nil
	}
	if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
		t.logger.Error("write error", "err", err)
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// internalErrorResponse builds a best-effort error frame, recovering the
// request id when the line parses.
func internalErrorResponse(rawRequest []byte, handlerErr error) []byte {
	var partial struct {
		ID any `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error:   &JSONRPCError{Code: ErrCodeInternalError, Message: handlerErr.Error()},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
