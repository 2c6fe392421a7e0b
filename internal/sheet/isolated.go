package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Parser turns a local spreadsheet path into rows.
type Parser interface {
	Parse(ctx context.Context, path string) ([]Row, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, path string) ([]Row, error)

func (f ParserFunc) Parse(ctx context.Context, path string) ([]Row, error) { return f(ctx, path) }

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxOutput = 64 << 20
	stderrCap        = 8 << 10
	waitDelay        = 2 * time.Second
)

var errOutputTooLarge = errors.New("parser output too large")

// Isolated runs each parse in a fresh child process speaking the JSON
// protocol in protocol.go. A crash, hang or garbled reply in the child
// surfaces as an io_error ParseError and never reaches the caller's process.
type Isolated struct {
	bin       string
	args      []string
	env       []string
	timeout   time.Duration
	maxOutput int64
	logger    *slog.Logger
}

type Option func(*Isolated)

// WithTimeout bounds one request/response exchange, including process start.
func WithTimeout(d time.Duration) Option {
	return func(p *Isolated) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxOutput caps the bytes accepted on the child's stdout.
func WithMaxOutput(n int64) Option {
	return func(p *Isolated) {
		if n > 0 {
			p.maxOutput = n
		}
	}
}

// WithArgs sets extra command-line arguments for the child.
func WithArgs(args ...string) Option {
	return func(p *Isolated) { p.args = args }
}

// WithEnv appends variables to the child's inherited environment.
func WithEnv(env ...string) Option {
	return func(p *Isolated) { p.env = append(p.env, env...) }
}

func NewIsolated(bin string, logger *slog.Logger, opts ...Option) *Isolated {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Isolated{
		bin:       bin,
		timeout:   defaultTimeout,
		maxOutput: defaultMaxOutput,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Isolated) Parse(ctx context.Context, path string) ([]Row, error) {
	start := time.Now()
	req, err := json.Marshal(Request{Version: ProtocolVersion, Path: path})
	if err != nil {
		return nil, ioError("encode parse request: "+err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.bin, p.args...)
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	cmd.Stdin = bytes.NewReader(req)
	stdout := &cappedBuffer{max: p.maxOutput, strict: true}
	stderr := &cappedBuffer{max: stderrCap}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	dur := time.Since(start)
	log := p.logger.With("cmd", p.bin, "path", path, "duration_ms", dur.Milliseconds())

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Error("parser timed out", "timeout", p.timeout, "stderr", stderr.String())
		return nil, ioError(fmt.Sprintf("parser timed out after %s", p.timeout), context.DeadlineExceeded)
	case ctx.Err() != nil:
		return nil, ioError("parse canceled", ctx.Err())
	case stdout.overflow:
		log.Error("parser output exceeded limit", "limit_bytes", p.maxOutput)
		return nil, ioError(fmt.Sprintf("parser output exceeded %d bytes", p.maxOutput), errOutputTooLarge)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil || stdout.Len() == 0 {
		if runErr != nil {
			log.Error("parser exited abnormally", "error", runErr, "stderr", stderr.String())
			return nil, ioError("parser exited abnormally: "+runErr.Error(), runErr)
		}
		log.Error("parser exited without a result", "stdout_bytes", stdout.Len(), "stderr", stderr.String())
		return nil, ioError("parser exited without a result", err)
	}
	if resp.Version != ProtocolVersion {
		log.Error("parser protocol mismatch", "got", resp.Version, "want", ProtocolVersion)
		return nil, ioError(fmt.Sprintf("parser protocol version %d, want %d", resp.Version, ProtocolVersion), nil)
	}
	if runErr != nil {
		log.Warn("parser exited non-zero after replying", "error", runErr)
	}
	if !resp.OK {
		if resp.Error == nil {
			return nil, ioError("parser reported failure without detail", nil)
		}
		pe := resp.Error.toParseError()
		log.Info("parse rejected", "kind", pe.Kind, "error", pe.Message)
		return nil, pe
	}

	log.Debug("parse ok", "rows", len(resp.Rows), "stdout_bytes", stdout.Len())
	return resp.Rows, nil
}

// cappedBuffer collects at most max bytes. A strict buffer fails the write
// once full, which stops the copy and closes the child's pipe; otherwise the
// excess is dropped. The buffer is a named field so io.Copy cannot reach
// bytes.Buffer.ReadFrom and skip the cap.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int64
	strict   bool
	overflow bool
}

var _ io.Writer = (*cappedBuffer)(nil)

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(b.buf.Len())
	if int64(len(p)) <= room {
		return b.buf.Write(p)
	}
	b.overflow = true
	if b.strict {
		return 0, errOutputTooLarge
	}
	if room > 0 {
		b.buf.Write(p[:room])
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) Len() int       { return b.buf.Len() }
func (b *cappedBuffer) String() string { return b.buf.String() }
