// Package metrics exposes the counters named in §4.4: per-instance
// written/flushed records and bytes. It follows the teacher's
// internal/metrics.Collector shape (one prometheus.CounterVec per metric
// family, registered once, exposed over promhttp) generalised to label by
// writer instance instead of by a single process-wide name.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is the narrow interface the writer supervisor (C4) and worker (C3)
// depend on: five named counters, each keyed by instance name. This
// mirrors §1's "metric sink (counters only)" external collaborator.
type Sink interface {
	AddWrittenRecords(instance string, n float64)
	AddWrittenBytes(instance string, n float64)
	AddFlushedRecords(instance string, n float64)
	AddFlushedBytes(instance string, n float64)
	AddParseErrors(instance string, n float64)
}

// PrometheusSink is the production Sink. It renders the §4.4 names
// <prefix>.<instance>.{written,flushed}.{records,bytes} the Prometheus way:
// families named <prefix>_{written,flushed}_{records,bytes}_total (plus
// <prefix>_parse_errors_total), with the instance carried as the
// "instance" label rather than as part of the name.
type PrometheusSink struct {
	prefix string

	writtenRecords *prometheus.CounterVec
	writtenBytes   *prometheus.CounterVec
	flushedRecords *prometheus.CounterVec
	flushedBytes   *prometheus.CounterVec
	parseErrors    *prometheus.CounterVec
}

// NewPrometheusSink registers the five counter-vecs with reg (pass
// prometheus.DefaultRegisterer in production, a fresh prometheus.NewRegistry()
// in tests that construct more than one Sink in the same process).
func NewPrometheusSink(reg prometheus.Registerer, prefix string) *PrometheusSink {
	s := &PrometheusSink{
		prefix: prefix,
		writtenRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_written_records_total", prefix),
			Help: "Total records written to an open column file, per writer instance.",
		}, []string{"instance"}),
		writtenBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_written_bytes_total", prefix),
			Help: "Total on-wire bytes written to an open column file, per writer instance.",
		}, []string{"instance"}),
		flushedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_flushed_records_total", prefix),
			Help: "Total records in finalised (renamed) column files, per writer instance.",
		}, []string{"instance"}),
		flushedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_flushed_bytes_total", prefix),
			Help: "Total bytes in finalised (renamed) column files, per writer instance.",
		}, []string{"instance"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_parse_errors_total", prefix),
			Help: "Total records dropped by the SkipAndCount record-error policy, per writer instance.",
		}, []string{"instance"}),
	}
	reg.MustRegister(s.writtenRecords, s.writtenBytes, s.flushedRecords, s.flushedBytes, s.parseErrors)
	return s
}

func (s *PrometheusSink) AddWrittenRecords(instance string, n float64) {
	s.writtenRecords.WithLabelValues(instance).Add(n)
}
func (s *PrometheusSink) AddWrittenBytes(instance string, n float64) {
	s.writtenBytes.WithLabelValues(instance).Add(n)
}
func (s *PrometheusSink) AddFlushedRecords(instance string, n float64) {
	s.flushedRecords.WithLabelValues(instance).Add(n)
}
func (s *PrometheusSink) AddFlushedBytes(instance string, n float64) {
	s.flushedBytes.WithLabelValues(instance).Add(n)
}
func (s *PrometheusSink) AddParseErrors(instance string, n float64) {
	s.parseErrors.WithLabelValues(instance).Add(n)
}

// Serve starts an HTTP server exposing /metrics on addr (e.g. ":9090"),
// matching the teacher CLI's metrics-server convention. It blocks until
// ctx is cancelled or the server errors.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// NopSink discards every observation; used in tests and when metrics are
// disabled in config.
type NopSink struct{}

func (NopSink) AddWrittenRecords(string, float64) {}
func (NopSink) AddWrittenBytes(string, float64)   {}
func (NopSink) AddFlushedRecords(string, float64) {}
func (NopSink) AddFlushedBytes(string, float64)   {}
func (NopSink) AddParseErrors(string, float64)    {}
