package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsforge/confsync/internal/store"
)

const storeScopeName = "github.com/opsforge/confsync/store"

// instruments are shared across every wrapped service so all kinds report
// into the same counters, distinguished by the "kind" attribute.
type instruments struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s with every service decorated with OTel tracing and
// metrics. When telemetry is disabled, s is returned as-is with zero
// overhead.
func WrapStore(s store.EntityStore) store.EntityStore {
	if !Enabled() {
		return s
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("confsync.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("confsync.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("confsync.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	return &instrumentedStore{
		inner: s,
		ins: &instruments{
			tracer: Tracer(storeScopeName),
			ops:    ops,
			dur:    dur,
			errs:   errs,
		},
	}
}

type instrumentedStore struct {
	inner store.EntityStore
	ins   *instruments
}

func (s *instrumentedStore) Groups() store.Service[store.GroupRecord] {
	return wrap(s.ins, "groups", s.inner.Groups())
}
func (s *instrumentedStore) Templates() store.Service[store.TemplateRecord] {
	return wrap(s.ins, "templates", s.inner.Templates())
}
func (s *instrumentedStore) Hosts() store.Service[store.HostRecord] {
	return wrap(s.ins, "hosts", s.inner.Hosts())
}
func (s *instrumentedStore) Items() store.Service[store.ItemRecord] {
	return wrap(s.ins, "items", s.inner.Items())
}
func (s *instrumentedStore) ItemPrototypes() store.Service[store.ItemRecord] {
	return wrap(s.ins, "item_prototypes", s.inner.ItemPrototypes())
}
func (s *instrumentedStore) DiscoveryRules() store.Service[store.ItemRecord] {
	return wrap(s.ins, "discovery_rules", s.inner.DiscoveryRules())
}
func (s *instrumentedStore) Triggers() store.Service[store.TriggerRecord] {
	return wrap(s.ins, "triggers", s.inner.Triggers())
}
func (s *instrumentedStore) TriggerPrototypes() store.Service[store.TriggerRecord] {
	return wrap(s.ins, "trigger_prototypes", s.inner.TriggerPrototypes())
}
func (s *instrumentedStore) Graphs() store.Service[store.GraphRecord] {
	return wrap(s.ins, "graphs", s.inner.Graphs())
}
func (s *instrumentedStore) GraphPrototypes() store.Service[store.GraphRecord] {
	return wrap(s.ins, "graph_prototypes", s.inner.GraphPrototypes())
}
func (s *instrumentedStore) HostPrototypes() store.Service[store.HostPrototypeRecord] {
	return wrap(s.ins, "host_prototypes", s.inner.HostPrototypes())
}
func (s *instrumentedStore) ValueMaps() store.Service[store.ValueMapRecord] {
	return wrap(s.ins, "value_maps", s.inner.ValueMaps())
}
func (s *instrumentedStore) HTTPTests() store.Service[store.HTTPTestRecord] {
	return wrap(s.ins, "http_tests", s.inner.HTTPTests())
}
func (s *instrumentedStore) Maps() store.Service[store.MapRecord] {
	return wrap(s.ins, "maps", s.inner.Maps())
}
func (s *instrumentedStore) Dashboards() store.Service[store.DashboardRecord] {
	return wrap(s.ins, "dashboards", s.inner.Dashboards())
}
func (s *instrumentedStore) MediaTypes() store.Service[store.MediaTypeRecord] {
	return wrap(s.ins, "media_types", s.inner.MediaTypes())
}
func (s *instrumentedStore) Images() store.Service[store.ImageRecord] {
	return wrap(s.ins, "images", s.inner.Images())
}
func (s *instrumentedStore) Proxies() store.Service[store.ProxyRecord] {
	return wrap(s.ins, "proxies", s.inner.Proxies())
}

type instrumentedService[R any] struct {
	inner store.Service[R]
	ins   *instruments
	kind  string
}

func wrap[R any](ins *instruments, kind string, svc store.Service[R]) store.Service[R] {
	return &instrumentedService[R]{inner: svc, ins: ins, kind: kind}
}

func (s *instrumentedService[R]) Get(ctx context.Context, q store.Query) ([]R, error) {
	ctx, done := s.start(ctx, "get")
	rows, err := s.inner.Get(ctx, q)
	done(ctx, err)
	return rows, err
}

func (s *instrumentedService[R]) Create(ctx context.Context, records []R) ([]string, error) {
	ctx, done := s.start(ctx, "create")
	ids, err := s.inner.Create(ctx, records)
	done(ctx, err)
	return ids, err
}

func (s *instrumentedService[R]) Update(ctx context.Context, records []R) ([]string, error) {
	ctx, done := s.start(ctx, "update")
	ids, err := s.inner.Update(ctx, records)
	done(ctx, err)
	return ids, err
}

func (s *instrumentedService[R]) Delete(ctx context.Context, ids []string) error {
	ctx, done := s.start(ctx, "delete")
	err := s.inner.Delete(ctx, ids)
	done(ctx, err)
	return err
}

func (s *instrumentedService[R]) start(ctx context.Context, op string) (context.Context, func(context.Context, error)) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", s.kind),
		attribute.String("op", op),
	}
	ctx, span := s.ins.tracer.Start(ctx, "store."+s.kind+"."+op,
		trace.WithAttributes(attrs...))
	begin := time.Now()
	return ctx, func(ctx context.Context, err error) {
		elapsed := float64(time.Since(begin).Microseconds()) / 1000.0
		s.ins.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
		s.ins.dur.Record(ctx, elapsed, metric.WithAttributes(attrs...))
		if err != nil {
			s.ins.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
