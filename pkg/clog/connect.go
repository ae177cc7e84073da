package clog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"
)

type connectConfig struct {
	Filter func(spec connect.Spec) bool
}

type ConnectOption interface {
	apply(*connectConfig)
}

type connectOptionFunc func(*connectConfig)

func (o connectOptionFunc) apply(c *connectConfig) {
	o(c)
}

func WithConnectFilter(filter func(connect.Spec) bool) ConnectOption {
	return connectOptionFunc(func(cfg *connectConfig) {
		cfg.Filter = filter
	})
}

func DefaultConnectHealthCheckUnaryFilter(spec connect.Spec) bool {
	return spec.Procedure != "/grpc.health.v1.Health/Check"
}

// NewSlogConnectInterceptor logs one line per unary call. Streaming is not
// served and passes through untouched.
func NewSlogConnectInterceptor(opts ...ConnectOption) connect.Interceptor {
	cfg := connectConfig{}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			startTime := time.Now()
			ctx = ContextWithSlog(ctx)
			AddAttributes(ctx, map[string]any{
				"method":      req.HTTPMethod(),
				"procedure":   req.Spec().Procedure,
				"stream_type": req.Spec().StreamType.String(),
			})
			resp, err := next(ctx, req)
			if cfg.Filter != nil && !cfg.Filter(req.Spec()) {
				return resp, err
			}

			var cerr *connect.Error
			code := "ok"
			if err != nil {
				if !errors.As(err, &cerr) {
					cerr = connect.NewError(connect.CodeUnknown, err)
				}
				code = cerr.Code().String()
			}
			AddAttributes(ctx, map[string]any{
				"code":     code,
				"duration": time.Since(startTime),
			})
			if cerr == nil {
				slog.InfoContext(ctx, "Finished")
			} else {
				logConnectError(ctx, cerr)
			}
			return resp, err
		}
	})
}

func logConnectError(ctx context.Context, cerr *connect.Error) {
	if errDetails := cerr.Details(); len(errDetails) > 0 {
		details := make([]proto.Message, 0, len(errDetails))
		for _, detail := range errDetails {
			val, err := detail.Value()
			if err != nil {
				slog.ErrorContext(ctx, "failed to convert detail value", ErrorAttributeKey, err)
				continue
			}
			details = append(details, val)
		}
		AddAttribute(ctx, "err_details", details)
	}
	slog.Log(ctx, ConnectCodeToLevel(cerr.Code()).SlogLevel(), cerr.Message())
}
