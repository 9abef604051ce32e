package rpc

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/jsonx"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 4 * 1024 * 1024

// StdioTransport reads line-delimited JSON-RPC requests from stdin and writes
// one response line per request to stdout. Diagnostics go to the logger
// (stderr), never the RPC channel.
type StdioTransport struct {
	reader  io.Reader
	writer  io.Writer
	logger  *zap.Logger
	writeMu sync.Mutex
}

// NewStdioTransport returns a transport bound to the process pipes.
func NewStdioTransport(logger *zap.Logger) *StdioTransport {
	return &StdioTransport{
		reader: os.Stdin,
		writer: os.Stdout,
		logger: logger.Named("stdio"),
	}
}

// Serve pumps requests until EOF or context cancellation. Malformed lines are
// answered with a parse error that carries no id, then skipped.
func (t *StdioTransport) Serve(ctx context.Context, server *Server) error {
	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	t.logger.Info("stdio transport started")

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			t.logger.Info("stdio transport stopping")
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := jsonx.Unmarshal(line, &req); err != nil {
			t.logger.Debug("malformed request line", zap.Error(err))
			t.send(Response{JSONRPC: "2.0", Error: &Error{Code: codeParseError, Message: "parse error"}})
			continue
		}

		resp := server.HandleRequest(ctx, req)

		// Notifications get no response.
		if req.ID == nil {
			continue
		}
		if err := t.send(resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	t.logger.Info("stdin closed, transport stopping")
	return nil
}

func (t *StdioTransport) send(resp Response) error {
	out, err := jsonx.Marshal(resp)
	if err != nil {
		t.logger.Error("failed to encode response", zap.Error(err))
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(append(out, '\n')); err != nil {
		return err
	}
	return nil
}
