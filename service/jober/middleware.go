package jober

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/policy"
	"github.com/viant/fluxflow/tracing"
	"go.uber.org/zap"
)

// Middleware decorates operator invocation
type Middleware struct {
	Name string
	Wrap func(next Operate) Operate
}

// Defaults returns recover, tracing, logging and policy middleware in that order
func Defaults(p *policy.Policy) []Middleware {
	return []Middleware{Recover(), Tracing(), Logging(), Policy(p)}
}

// Tracing opens a span per operator invocation
func Tracing() Middleware {
	return Middleware{Name: "tracing", Wrap: func(next Operate) Operate {
		return func(ctx context.Context, batch []*flow.Context, jober *definition.Jober) (err error) {
			ctx, span := tracing.StartSpan(ctx, "jober."+string(jober.Type), "CLIENT")
			span.WithAttributes(map[string]string{
				"node":  jober.NodeID,
				"jober": jober.Name,
				"batch": strconv.Itoa(len(batch)),
			})
			defer func() { tracing.EndSpan(span, err) }()
			return next(ctx, batch, jober)
		}
	}}
}

// Logging logs invocation outcome
func Logging() Middleware {
	return Middleware{Name: "logging", Wrap: func(next Operate) Operate {
		return func(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
			started := time.Now()
			err := next(ctx, batch, jober)
			fields := []zap.Field{
				zap.String("node", jober.NodeID),
				zap.String("type", string(jober.Type)),
				zap.Int("batch", len(batch)),
				zap.Duration("elapsed", time.Since(started)),
			}
			if err != nil {
				logger.Warn("jober failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Debug("jober completed", fields...)
			return nil
		}
	}}
}

// Policy rejects jober types and fitables not permitted by p, or by the context policy when p is nil
func Policy(p *policy.Policy) Middleware {
	return Middleware{Name: "policy", Wrap: func(next Operate) Operate {
		return func(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
			active := p
			if active == nil {
				active = policy.FromContext(ctx)
			}
			if !active.Permits(ctx, string(jober.Type), jober.Properties) {
				return fmt.Errorf("%w: %v", ErrPolicyDenied, jober.Type)
			}
			for _, fitable := range jober.Fitables {
				if !active.Permits(ctx, fitable, jober.Properties) {
					return fmt.Errorf("%w: %v", ErrPolicyDenied, fitable)
				}
			}
			return next(ctx, batch, jober)
		}
	}}
}

// Recover converts operator panics into errors
func Recover() Middleware {
	return Middleware{Name: "recover", Wrap: func(next Operate) Operate {
		return func(ctx context.Context, batch []*flow.Context, jober *definition.Jober) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("jober %v panic: %v", jober.Type, r)
				}
			}()
			return next(ctx, batch, jober)
		}
	}}
}
