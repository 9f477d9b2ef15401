// Package fetch performs the single request/response exchange the firmware makes once the
// network is ready.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BufferSize is the fixed receive buffer. Longer bodies are truncated, not rejected.
const BufferSize = 4096

type Kind uint8

const (
	KindBuildError Kind = iota + 1
	KindSendError
	KindSuccess
)

func (k Kind) String() string {
	switch k {
	case KindBuildError:
		return "build_error"
	case KindSendError:
		return "send_error"
	case KindSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// TransportError is a failure of one step of an attempt.
type TransportError struct {
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Response is the metadata of a received response.
type Response struct {
	Status        int
	Proto         string
	Header        http.Header
	ContentLength int64
	// N is the number of body bytes held in the buffer.
	N         int
	Truncated bool
}

// Outcome is the terminal result of one attempt.
type Outcome struct {
	ID       string
	Kind     Kind
	Err      error
	Response Response
	// Body aliases the executor's buffer and is only valid until the next Execute.
	Body []byte
}

func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Client is the HTTP collaborator. Request only builds; Send transmits and fills buf.
type Client interface {
	Request(ctx context.Context, method, target string) (*http.Request, error)
	Send(req *http.Request, buf []byte) (Response, error)
}

type ExecutorOption func(*Executor)

func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTimeout bounds a whole attempt. Zero, the default, leaves it to the caller's context.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// Executor owns the receive buffer. It is not safe for concurrent use.
type Executor struct {
	client  Client
	log     *zap.Logger
	timeout time.Duration
	buf     [BufferSize]byte
}

func NewExecutor(c Client, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client: c,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("fetch")
	return e
}

// Execute makes exactly one attempt. Send is never called when the request cannot be built, and
// nothing is retried.
func (e *Executor) Execute(ctx context.Context, method, target string) Outcome {
	out := Outcome{ID: uuid.NewString()}
	log := e.log.With(
		zap.String("attempt", out.ID),
		zap.String("method", method),
		zap.String("target", target))

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := e.client.Request(ctx, method, target)
	if err != nil {
		out.Kind = KindBuildError
		out.Err = &TransportError{Step: "build", Err: err}
		log.Warn("request not sent", zap.Error(out.Err))
		return out
	}

	log.Debug("sending request")
	resp, err := e.client.Send(req, e.buf[:])
	if err != nil {
		out.Kind = KindSendError
		out.Err = &TransportError{Step: "send", Err: err}
		out.Response = resp
		log.Warn("request failed", zap.Error(out.Err))
		return out
	}

	out.Kind = KindSuccess
	out.Response = resp
	out.Body = e.buf[:resp.N]
	log.Info("response received",
		zap.Int("status", resp.Status),
		zap.Int("bytes", resp.N),
		zap.Bool("truncated", resp.Truncated))
	return out
}
