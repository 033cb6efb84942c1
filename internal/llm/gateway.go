package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/metrics"
)

// Gateway routes generation requests to upstream providers and relays
// their output as frames. It holds no per-request state.
type Gateway struct {
	providers map[ProviderKind]ProviderConfig
	factory   ProviderFactory
	log       zerolog.Logger
}

// NewGateway creates a gateway over the given provider configuration.
func NewGateway(providers map[ProviderKind]ProviderConfig, log zerolog.Logger) *Gateway {
	return &Gateway{providers: providers, factory: NewProvider, log: log}
}

// WithFactory replaces the provider factory.
func (g *Gateway) WithFactory(f ProviderFactory) *Gateway {
	g.factory = f
	return g
}

// Stream dispatches req and yields its frames in upstream order. Any
// failure yields exactly one error frame, after which the sequence ends.
// Nothing is retried.
func (g *Gateway) Stream(ctx context.Context, req Request) iter.Seq[frame.Frame] {
	return func(yield func(frame.Frame) bool) {
		log := g.log.With().Str("model", req.Model).Logger()

		route, err := Resolve(req.Model)
		if err != nil {
			log.Warn().Err(err).Msg("cannot route request")
			metrics.GenerationsTotal.WithLabelValues("none", "unknown_model").Inc()
			yield(frame.ErrorFrame(err))
			return
		}
		label := route.Kind.String()
		log = log.With().Str("provider", label).Str("upstream_model", route.Model).Logger()

		cfg := g.providers[route.Kind]
		cfg.Logger = &log
		provider, err := g.factory(route, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("provider unavailable")
			metrics.GenerationsTotal.WithLabelValues(label, outcomeOf(err)).Inc()
			yield(frame.ErrorFrame(err))
			return
		}

		start := time.Now()
		stream, err := provider.Stream(ctx, req)
		if err != nil {
			log.Warn().Err(err).Msg("failed to start stream")
			metrics.GenerationsTotal.WithLabelValues(label, "error").Inc()
			yield(frame.ErrorFrame(err))
			return
		}
		defer stream.Close()

		frames := 0
		var usage *frame.Usage
		for {
			f, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug().Int("frames", frames).Dur("elapsed", time.Since(start)).Msg("stream complete")
				metrics.GenerationsTotal.WithLabelValues(label, "ok").Inc()
				observeUsage(label, usage)
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					log.Debug().Int("frames", frames).Msg("client went away")
					metrics.GenerationsTotal.WithLabelValues(label, "cancelled").Inc()
					return
				}
				log.Warn().Err(err).Int("frames", frames).Msg("upstream error")
				metrics.GenerationsTotal.WithLabelValues(label, outcomeOf(err)).Inc()
				yield(frame.ErrorFrame(err))
				return
			}

			if frames == 0 {
				metrics.TimeToFirstFrame.WithLabelValues(label).Observe(time.Since(start).Seconds())
			}
			frames++
			if f.Usage != nil {
				usage = f.Usage
			}
			observeFrame(label, f)
			if !yield(f) {
				metrics.GenerationsTotal.WithLabelValues(label, "cancelled").Inc()
				return
			}
		}
	}
}

func observeFrame(provider string, f frame.Frame) {
	metrics.FramesEmitted.WithLabelValues(provider).Inc()
	if f.FinishReason != frame.FinishNone {
		metrics.FinishReasons.WithLabelValues(provider, string(f.FinishReason)).Inc()
	}
}

// observeUsage records the last usage report of a stream; providers send
// cumulative counters.
func observeUsage(provider string, u *frame.Usage) {
	if u == nil {
		return
	}
	metrics.TokensTotal.WithLabelValues(provider, "prompt").Add(float64(u.PromptTokens))
	metrics.TokensTotal.WithLabelValues(provider, "completion").Add(float64(u.CompletionTokens))
}

func outcomeOf(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrEmptyBody):
		return "empty_body"
	case errors.As(err, &statusErr):
		return "upstream_status"
	default:
		return "error"
	}
}
