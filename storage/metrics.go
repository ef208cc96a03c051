package storage

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

const outcomeOK = "ok"

// Metrics records per-backend operation counts and latencies.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileio_operations_total",
			Help: "File IO operations by backend, operation and outcome.",
		}, []string{"backend", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fileio_operation_duration_seconds",
			Help:    "File IO operation latency by backend and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "op"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Instrument wraps fio so every operation is recorded. Output handles are
// recorded once more when their content is committed on Close.
func (m *Metrics) Instrument(fio interfaces.FileIO) interfaces.FileIO {
	return &instrumentedFileIO{
		FileIO:  fio,
		metrics: m,
		backend: fio.Properties().Name,
	}
}

func (m *Metrics) observe(backend, op string, start time.Time, err error) {
	outcome := outcomeOK
	if err != nil {
		kind, ok := interfaces.KindOf(err)
		if !ok {
			kind = interfaces.KindIOFailure
		}
		outcome = kind.String()
	}
	m.operations.WithLabelValues(backend, op, outcome).Inc()
	m.duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

type instrumentedFileIO struct {
	interfaces.FileIO
	metrics *Metrics
	backend string
}

func (i *instrumentedFileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	start := time.Now()
	f, err := i.FileIO.NewInputFile(ctx, location)
	i.metrics.observe(i.backend, "new_input", start, err)
	return f, err
}

func (i *instrumentedFileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	start := time.Now()
	f, err := i.FileIO.NewOutputFile(ctx, location)
	i.metrics.observe(i.backend, "new_output", start, err)
	if err != nil {
		return nil, err
	}
	return &instrumentedOutput{OutputFile: f, metrics: i.metrics, backend: i.backend}, nil
}

func (i *instrumentedFileIO) DeleteFile(ctx context.Context, location string) error {
	start := time.Now()
	err := i.FileIO.DeleteFile(ctx, location)
	i.metrics.observe(i.backend, "delete", start, err)
	return err
}

func (i *instrumentedFileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	start := time.Now()
	created, err := i.FileIO.Mkdir(ctx, location)
	i.metrics.observe(i.backend, "mkdir", start, err)
	return created, err
}

// Close closes the wrapped backend when it holds resources.
func (i *instrumentedFileIO) Close() error {
	if c, ok := i.FileIO.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type instrumentedOutput struct {
	interfaces.OutputFile
	metrics  *Metrics
	backend  string
	recorded bool
}

func (o *instrumentedOutput) Close() error {
	start := time.Now()
	err := o.OutputFile.Close()
	if !o.recorded {
		o.recorded = true
		o.metrics.observe(o.backend, "commit", start, err)
	}
	return err
}
