package page

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/album-list/internal/album"
	"github.com/JakeFAU/album-list/internal/jsonp"
	"github.com/JakeFAU/album-list/internal/metrics"
)

const tracerName = "github.com/JakeFAU/album-list/internal/page"

// TimeoutMessage is logged when the endpoint does not answer in time.
const TimeoutMessage = "Something went wrong."

// Sender starts callback fetches.
type Sender interface {
	Send(ctx context.Context, src string, opts jsonp.Options) *jsonp.Call
}

// Config holds the fixed request parameters of a page load.
type Config struct {
	BaseURL      string
	CallbackName string
	Timeout      time.Duration
}

// OutcomeKind classifies a page load.
type OutcomeKind int

// Page load outcomes.
const (
	Success OutcomeKind = iota
	Timeout
	Malformed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome reports what a page load did.
type Outcome struct {
	Kind       OutcomeKind
	RequestURL string
	CallbackID string
	Albums     []album.Album
	HTML       string
	Err        error
}

// Controller runs page loads.
type Controller struct {
	cfg    Config
	sender Sender
	logger *zap.Logger
}

// NewController builds a Controller. A nil logger disables logging.
func NewController(cfg Config, sender Sender, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, sender: sender, logger: logger}
}

// Load performs one fetch for pageURL and renders into target on success.
// On timeout or a malformed payload target is left untouched. Load returns
// once the fetch has resolved, which is bounded by the configured timeout.
func (c *Controller) Load(ctx context.Context, pageURL string, target Target) Outcome {
	filter := FilterParam(pageURL, FilterParamName)
	out := Outcome{RequestURL: BuildRequestURL(c.cfg.BaseURL, c.cfg.CallbackName, filter)}
	logger := c.logger.With(zap.String("request_url", out.RequestURL))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "page.Load")
	defer span.End()

	call := c.sender.Send(ctx, out.RequestURL, jsonp.Options{
		CallbackName: c.cfg.CallbackName,
		Timeout:      c.cfg.Timeout,
		OnSuccess: func(payload jsonp.Payload) {
			html, albums, err := Render(payload)
			if err != nil {
				out.Kind = Malformed
				out.Err = err
				logger.Error("album payload rejected", zap.Error(err))
				return
			}
			target.Replace(html)
			out.Kind = Success
			out.Albums = albums
			out.HTML = html
		},
		OnTimeout: func() {
			out.Kind = Timeout
			out.Err = jsonp.ErrTimeout
			logger.Warn(TimeoutMessage)
		},
	})
	// The call always resolves by its deadline, so waiting past a cancelled
	// request context is bounded.
	if _, err := call.Wait(context.WithoutCancel(ctx)); err != nil {
		logger.Error("wait for album fetch", zap.Error(err))
	}
	out.CallbackID = call.CallbackID()

	span.SetAttributes(
		attribute.String("page.outcome", out.Kind.String()),
		attribute.Int("page.albums", len(out.Albums)),
	)
	if out.Err != nil {
		span.SetStatus(codes.Error, out.Err.Error())
	}
	metrics.ObservePageLoad(out.Kind.String(), c.cfg.BaseURL, len(out.Albums))
	logger.Info("page load finished",
		zap.Stringer("outcome", out.Kind),
		zap.String("callback_id", out.CallbackID),
		zap.Int("albums", len(out.Albums)),
	)
	return out
}
