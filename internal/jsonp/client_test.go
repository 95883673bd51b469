package jsonp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fetchFunc func(ctx context.Context, req Request) (Response, error)

func (f fetchFunc) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

type seqIDs struct {
	n atomic.Int64
}

func (g *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("tok-%d", g.n.Add(1)), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

type counters struct {
	success atomic.Int32
	timeout atomic.Int32
	payload atomic.Value
}

func (c *counters) options(timeout time.Duration) Options {
	return Options{
		CallbackName: "handleStuff",
		Timeout:      timeout,
		OnSuccess: func(p Payload) {
			c.payload.Store(string(p))
			c.success.Add(1)
		},
		OnTimeout: func() { c.timeout.Add(1) },
	}
}

func callbackOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get(CallbackParam)
}

func echoFetcher(t *testing.T, body string) Fetcher {
	return fetchFunc(func(_ context.Context, req Request) (Response, error) {
		id := callbackOf(t, req.URL)
		return Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(id + "(" + body + ");")}, nil
	})
}

func waitResult(t *testing.T, call *Call) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := call.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestSendSuccessRunsOnlySuccessHandler(t *testing.T) {
	t.Parallel()

	var seen atomic.Value
	fetcher := fetchFunc(func(_ context.Context, req Request) (Response, error) {
		seen.Store(req.URL)
		id := callbackOf(t, req.URL)
		return Response{StatusCode: http.StatusOK, Body: []byte(id + `("[[\"Trip\",\"http://x/a\",\"http://x/a.jpg\"]]")`)}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	call := client.Send(context.Background(), "https://example.com/exec?callback=handleStuff&filter=beach", c.options(time.Second))
	res := waitResult(t, call)

	require.Equal(t, ResolvedSuccess, res.State)
	require.NoError(t, res.Err)
	require.Equal(t, "handleStuff_tok1", res.CallbackID)
	require.Equal(t, `"[[\"Trip\",\"http://x/a\",\"http://x/a.jpg\"]]"`, string(res.Payload))
	require.Equal(t, int32(1), c.success.Load())
	require.Equal(t, int32(0), c.timeout.Load())
	require.Equal(t, ResolvedSuccess, call.State())
	require.Equal(t, "https://example.com/exec?callback=handleStuff_tok1&filter=beach", seen.Load())
}

func TestSendTimeoutRunsOnlyTimeoutHandler(t *testing.T) {
	t.Parallel()

	fetcher := fetchFunc(func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", c.options(30*time.Millisecond)))

	require.Equal(t, ResolvedTimeout, res.State)
	require.ErrorIs(t, res.Err, ErrTimeout)
	require.Nil(t, res.Payload)
	require.GreaterOrEqual(t, res.Elapsed, 30*time.Millisecond)
	require.Equal(t, int32(0), c.success.Load())
	require.Equal(t, int32(1), c.timeout.Load())
}

func TestSendDropsLateResponse(t *testing.T) {
	t.Parallel()

	returned := make(chan struct{})
	fetcher := fetchFunc(func(_ context.Context, req Request) (Response, error) {
		defer close(returned)
		time.Sleep(80 * time.Millisecond)
		id := callbackOf(t, req.URL)
		return Response{StatusCode: http.StatusOK, Body: []byte(id + `([])`)}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", c.options(20*time.Millisecond)))
	require.Equal(t, ResolvedTimeout, res.State)

	<-returned
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), c.success.Load())
	require.Equal(t, int32(1), c.timeout.Load())
}

func TestSendIgnoresStaleCallback(t *testing.T) {
	t.Parallel()

	fetcher := fetchFunc(func(context.Context, Request) (Response, error) {
		return Response{StatusCode: http.StatusOK, Body: []byte(`handleStuff([["Old","http://x/o","http://x/o.jpg"]])`)}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", c.options(30*time.Millisecond)))

	require.Equal(t, ResolvedTimeout, res.State)
	require.Equal(t, int32(0), c.success.Load())
}

func TestSendFetchErrorResolvesAsTimeout(t *testing.T) {
	t.Parallel()

	fetcher := fetchFunc(func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("connection refused")
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	start := time.Now()
	res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", c.options(30*time.Millisecond)))

	require.Equal(t, ResolvedTimeout, res.State)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, int32(1), c.timeout.Load())
}

func TestSendInvalidURLResolvesAsTimeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fetcher := fetchFunc(func(context.Context, Request) (Response, error) {
		calls.Add(1)
		return Response{}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	res := waitResult(t, client.Send(context.Background(), "/relative/only", c.options(10*time.Millisecond)))

	require.Equal(t, ResolvedTimeout, res.State)
	require.Equal(t, int32(0), calls.Load())
}

func TestSendAcceptsJSONResponses(t *testing.T) {
	t.Parallel()

	fetcher := fetchFunc(func(context.Context, Request) (Response, error) {
		return Response{
			StatusCode: http.StatusOK,
			Headers:    http.Header{"Content-Type": {"application/json; charset=utf-8"}},
			Body:       []byte(` [["Trip","http://x/a","http://x/a.jpg"]] `),
		}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	var c counters

	res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", c.options(time.Second)))

	require.Equal(t, ResolvedSuccess, res.State)
	require.Equal(t, `[["Trip","http://x/a","http://x/a.jpg"]]`, string(res.Payload))
}

func TestSendUsesUniqueCallbackIDs(t *testing.T) {
	t.Parallel()

	client := NewClient(echoFetcher(t, `[]`), &seqIDs{}, wallClock{}, nil)
	first := client.Send(context.Background(), "https://example.com/exec", Options{CallbackName: "handleStuff"})
	second := client.Send(context.Background(), "https://example.com/exec", Options{CallbackName: "handleStuff"})

	require.NotEqual(t, first.CallbackID(), second.CallbackID())
	require.Equal(t, ResolvedSuccess, waitResult(t, first).State)
	require.Equal(t, ResolvedSuccess, waitResult(t, second).State)
}

func TestSendFallsBackToSequenceToken(t *testing.T) {
	t.Parallel()

	client := NewClient(echoFetcher(t, `[]`), failingIDs{}, wallClock{}, nil)
	call := client.Send(context.Background(), "https://example.com/exec", Options{})

	require.Equal(t, "callback_s1", call.CallbackID())
	require.Equal(t, ResolvedSuccess, waitResult(t, call).State)
}

// Responses landing right at the deadline must still resolve exactly once.
func TestSendResolvesExactlyOnceAtDeadline(t *testing.T) {
	t.Parallel()

	fetcher := fetchFunc(func(_ context.Context, req Request) (Response, error) {
		time.Sleep(time.Millisecond)
		id := callbackOf(t, req.URL)
		return Response{StatusCode: http.StatusOK, Body: []byte(id + `([])`)}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)

	for i := 0; i < 200; i++ {
		var c counters
		res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", c.options(time.Millisecond)))
		time.Sleep(2 * time.Millisecond)

		total := c.success.Load() + c.timeout.Load()
		require.Equal(t, int32(1), total, "iteration %d fired %d handlers", i, total)
		if res.State == ResolvedSuccess {
			require.Equal(t, int32(1), c.success.Load())
		} else {
			require.Equal(t, int32(1), c.timeout.Load())
		}
	}
}

func TestWaitReturnsWhenContextEnds(t *testing.T) {
	t.Parallel()

	fetcher := fetchFunc(func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)
	call := client.Send(context.Background(), "https://example.com/exec", Options{Timeout: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := call.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, Pending, res.State)

	require.Equal(t, ResolvedTimeout, waitResult(t, call).State)
}

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts := Options{}.withDefaults()
	require.Equal(t, DefaultCallbackName, opts.CallbackName)
	require.Equal(t, DefaultTimeout, opts.Timeout)
	require.NotNil(t, opts.OnSuccess)
	require.NotNil(t, opts.OnTimeout)

	opts = Options{Timeout: -time.Second}.withDefaults()
	require.Equal(t, DefaultTimeout, opts.Timeout)
}

func TestWithCallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
		want string
	}{
		{"replaces existing", "https://x.test/exec?callback=handleStuff&filter=a%20b", "https://x.test/exec?callback=cb_1&filter=a%20b"},
		{"adds missing", "https://x.test/exec?filter=beach", "https://x.test/exec?callback=cb_1&filter=beach"},
		{"no query", "https://x.test/exec", "https://x.test/exec?callback=cb_1"},
		{"drops duplicates", "https://x.test/exec?callback=a&callback=b", "https://x.test/exec?callback=cb_1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := withCallback(tc.src, "cb_1")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := withCallback("://bad", "cb_1")
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pending", Pending.String())
	require.Equal(t, "success", ResolvedSuccess.String())
	require.Equal(t, "timeout", ResolvedTimeout.String())
	require.Equal(t, "unknown", State(9).String())
}

func TestSendPropagatesTraceContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})

	var traceparent atomic.Value
	fetcher := fetchFunc(func(_ context.Context, req Request) (Response, error) {
		traceparent.Store(req.Headers.Get("traceparent"))
		id := callbackOf(t, req.URL)
		return Response{StatusCode: http.StatusOK, Body: []byte(id + `([])`)}, nil
	})
	client := NewClient(fetcher, &seqIDs{}, wallClock{}, nil)

	res := waitResult(t, client.Send(context.Background(), "https://example.com/exec", Options{Timeout: time.Second}))
	require.Equal(t, ResolvedSuccess, res.State)
	require.NotEmpty(t, traceparent.Load())

	require.Eventually(t, func() bool { return len(recorder.Ended()) == 1 }, time.Second, 5*time.Millisecond)
	span := recorder.Ended()[0]
	require.Equal(t, "jsonp.Send", span.Name())
	require.Contains(t, span.Attributes(), attribute.String("jsonp.state", "success"))
	require.Contains(t, span.Attributes(), attribute.String("jsonp.callback_id", res.CallbackID))
}
