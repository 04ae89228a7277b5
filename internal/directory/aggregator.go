package directory

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/identityd/internal/metrics"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

const tracerName = "github.com/dropDatabas3/identityd/internal/directory"

// Aggregator distribuye una búsqueda a los providers seleccionados y junta
// los resultados en orden de registro.
type Aggregator struct {
	reg    *Registry
	tracer trace.Tracer
	log    *zap.Logger
}

// NewAggregator crea un Aggregator sobre reg.
func NewAggregator(reg *Registry, log *zap.Logger) *Aggregator {
	if log == nil {
		log = logger.L()
	}
	return &Aggregator{
		reg:    reg,
		tracer: otel.Tracer(tracerName),
		log:    log.With(logger.Layer("directory"), logger.Component("aggregator")),
	}
}

// SearchPrincipals consulta los providers en paralelo y espera a todos. Un
// provider que falla o hace panic no aporta resultados ni afecta al resto.
func (a *Aggregator) SearchPrincipals(ctx context.Context, q Query) []Principal {
	providers := a.reg.Providers(q.Providers...)
	if len(providers) == 0 {
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "directory.SearchPrincipals", trace.WithAttributes(
		attribute.Int("directory.providers", len(providers)),
		attribute.Int("directory.filter", int(q.Filter)),
	))
	defer span.End()

	results := make([][]Principal, len(providers))
	var g errgroup.Group
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			results[i] = a.searchOne(ctx, p, q)
			return nil
		})
	}
	_ = g.Wait()

	var out []Principal
	for _, r := range results {
		out = append(out, r...)
	}
	span.SetAttributes(attribute.Int("directory.results", len(out)))
	return out
}

func (a *Aggregator) searchOne(ctx context.Context, p Provider, q Query) (res []Principal) {
	ctx, span := a.tracer.Start(ctx, "directory.provider.search", trace.WithAttributes(
		attribute.String("directory.provider", p.Name()),
	))
	defer span.End()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("provider panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			metrics.DirectorySearchFailures.WithLabelValues(p.Name()).Inc()
			a.log.Error("provider search panicked", logger.Provider(p.Name()), logger.Err(err))
			res = nil
		}
		metrics.DirectorySearchLatency.WithLabelValues(p.Name(), "search").Observe(time.Since(start).Seconds())
	}()

	res = p.SearchPrincipals(ctx, q.Text, q.Filter, q.Mode)
	span.SetAttributes(attribute.Int("directory.results", len(res)))
	return res
}

// FindBySubjectID recorre los providers en orden de registro y retorna el
// primer principal no nil.
func (a *Aggregator) FindBySubjectID(ctx context.Context, subjectID string, providers ...string) *Principal {
	ctx, span := a.tracer.Start(ctx, "directory.FindBySubjectID")
	defer span.End()

	for _, p := range a.reg.Providers(providers...) {
		if pr := a.findOne(ctx, p, subjectID); pr != nil {
			span.SetAttributes(attribute.String("directory.provider", p.Name()))
			return pr
		}
	}
	return nil
}

func (a *Aggregator) findOne(ctx context.Context, p Provider, subjectID string) (pr *Principal) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.DirectorySearchFailures.WithLabelValues(p.Name()).Inc()
			a.log.Error("provider lookup panicked", logger.Provider(p.Name()), logger.Any("panic", r))
			pr = nil
		}
		metrics.DirectorySearchLatency.WithLabelValues(p.Name(), "find").Observe(time.Since(start).Seconds())
	}()
	return p.FindBySubjectID(ctx, subjectID)
}
