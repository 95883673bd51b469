package jsonp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/album-list/internal/metrics"
)

const tracerName = "github.com/JakeFAU/album-list/internal/jsonp"

// Defaults applied to zero-valued Options.
const (
	DefaultCallbackName = "callback"
	DefaultTimeout      = 10 * time.Second
)

// CallbackParam is the query parameter carrying the callback identifier.
const CallbackParam = "callback"

// ErrTimeout is reported in Result.Err when the deadline wins.
var ErrTimeout = errors.New("jsonp: deadline elapsed before callback")

// State is the lifecycle of a call.
type State int32

// Call states. Both resolved states are terminal.
const (
	Pending State = iota
	ResolvedSuccess
	ResolvedTimeout
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case ResolvedSuccess:
		return "success"
	case ResolvedTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Payload is the raw argument the endpoint passed to the callback.
type Payload []byte

// Options configures a single call.
//   - CallbackName: prefix of the callback identifier (default "callback").
//   - OnSuccess: runs with the payload when the callback wins.
//   - OnTimeout: runs when the deadline wins.
//   - Timeout: deadline for the call (default 10s).
type Options struct {
	CallbackName string
	OnSuccess    func(Payload)
	OnTimeout    func()
	Timeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.CallbackName == "" {
		o.CallbackName = DefaultCallbackName
	}
	if o.OnSuccess == nil {
		o.OnSuccess = func(Payload) {}
	}
	if o.OnTimeout == nil {
		o.OnTimeout = func() {}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Result describes how a call resolved.
type Result struct {
	State      State
	Payload    Payload
	CallbackID string
	Elapsed    time.Duration
	Err        error
}

// Client issues callback-style fetches.
type Client struct {
	fetcher Fetcher
	ids     IDGenerator
	clock   Clock
	logger  *zap.Logger
	seq     atomic.Uint64
}

// NewClient builds a Client. A nil logger disables logging.
func NewClient(fetcher Fetcher, ids IDGenerator, clock Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Client{
		fetcher: fetcher,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}
}

// Call is a pending or resolved fetch. It is the per-request future that
// carries the payload from the transfer to the handlers.
type Call struct {
	id      string
	opts    Options
	clock   Clock
	started time.Time
	state   atomic.Int32
	done    chan struct{}
	result  Result
}

// Send starts a call against src. The callback parameter of src is replaced
// with the call's own identifier. Exactly one of opts.OnSuccess and
// opts.OnTimeout runs, on a goroutine owned by the call.
func (c *Client) Send(ctx context.Context, src string, opts Options) *Call {
	opts = opts.withDefaults()
	call := &Call{
		id:      c.callbackID(opts.CallbackName),
		opts:    opts,
		clock:   c.clock,
		started: c.clock.Now(),
		done:    make(chan struct{}),
	}
	logger := c.logger.With(zap.String("callback_id", call.id))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "jsonp.Send")
	span.SetAttributes(attribute.String("jsonp.callback_id", call.id))

	timer := time.NewTimer(opts.Timeout)
	fetchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	delivered := make(chan Payload, 1)

	target, err := withCallback(src, call.id)
	if err != nil {
		logger.Warn("invalid request url; waiting for deadline", zap.String("url", src), zap.Error(err))
		span.RecordError(err)
	} else {
		go c.transfer(fetchCtx, target, call.id, delivered, logger)
	}

	go func() {
		defer cancel()
		select {
		case payload := <-delivered:
			timer.Stop()
			call.resolve(ResolvedSuccess, payload)
		case <-timer.C:
			call.resolve(ResolvedTimeout, nil)
		}
		metrics.ObserveCallback(call.result.State.String(), call.result.Elapsed)
		span.SetAttributes(attribute.String("jsonp.state", call.result.State.String()))
		if call.result.State == ResolvedTimeout {
			span.SetStatus(codes.Error, ErrTimeout.Error())
		}
		span.End()
		logger.Debug("call resolved",
			zap.Stringer("state", call.result.State),
			zap.Duration("elapsed", call.result.Elapsed),
		)
	}()
	return call
}

func (c *Client) transfer(
	ctx context.Context,
	target string,
	callbackID string,
	delivered chan<- Payload,
	logger *zap.Logger,
) {
	headers := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
	resp, err := c.fetcher.Fetch(ctx, Request{URL: target, Headers: headers})
	if err != nil {
		logger.Debug("transfer failed", zap.String("url", target), zap.Error(err))
		return
	}
	payload, err := extractPayload(resp, callbackID)
	if err != nil {
		logger.Debug("response ignored", zap.String("url", target), zap.Error(err))
		return
	}
	// Buffered; a delivery after the deadline is dropped with the channel.
	delivered <- Payload(payload)
}

func (c *Client) callbackID(prefix string) string {
	token, err := c.ids.NewID()
	if err != nil || token == "" {
		c.logger.Warn("correlation token unavailable; using sequence", zap.Error(err))
		token = "s" + strconv.FormatUint(c.seq.Add(1), 10)
	}
	return prefix + "_" + strings.ReplaceAll(token, "-", "")
}

// resolve records the terminal state and runs the matching handler. It is
// only called from the call's supervising goroutine.
func (call *Call) resolve(state State, payload Payload) {
	if !call.state.CompareAndSwap(int32(Pending), int32(state)) {
		return
	}
	call.result = Result{
		State:      state,
		CallbackID: call.id,
		Elapsed:    call.clock.Now().Sub(call.started),
	}
	switch state {
	case ResolvedSuccess:
		call.result.Payload = payload
		call.opts.OnSuccess(payload)
	case ResolvedTimeout:
		call.result.Err = ErrTimeout
		call.opts.OnTimeout()
	}
	close(call.done)
}

// CallbackID returns the identifier the endpoint must invoke.
func (call *Call) CallbackID() string {
	return call.id
}

// State reports the current lifecycle state.
func (call *Call) State() State {
	return State(call.state.Load())
}

// Done is closed once the call has resolved and its handler has returned.
func (call *Call) Done() <-chan struct{} {
	return call.done
}

// Wait blocks until the call resolves or ctx ends. Cancelling ctx only stops
// waiting; the call still resolves on its own.
func (call *Call) Wait(ctx context.Context) (Result, error) {
	select {
	case <-call.done:
		return call.result, nil
	case <-ctx.Done():
		return Result{State: call.State(), CallbackID: call.id}, fmt.Errorf("wait for %s: %w", call.id, ctx.Err())
	}
}

// withCallback points the callback parameter of src at callbackID. The rest
// of the query is kept byte for byte so forwarded values stay verbatim.
func withCallback(src, callbackID string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", src)
	}
	param := CallbackParam + "=" + url.QueryEscape(callbackID)
	var parts []string
	if u.RawQuery != "" {
		parts = strings.Split(u.RawQuery, "&")
	}
	replaced := false
	for i, part := range parts {
		if part == CallbackParam || strings.HasPrefix(part, CallbackParam+"=") {
			if replaced {
				parts[i] = ""
				continue
			}
			parts[i] = param
			replaced = true
		}
	}
	if !replaced {
		parts = append([]string{param}, parts...)
	}
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String(), nil
}
