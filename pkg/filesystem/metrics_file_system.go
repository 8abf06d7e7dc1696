package filesystem

import (
	"io"
	"sync"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/prometheus/client_golang/prometheus"

	"google.golang.org/grpc/status"
)

var (
	fileSystemPrometheusMetrics sync.Once

	fileSystemOperationsDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "sectorfs",
			Name:      "file_system_operations_duration_seconds",
			Help:      "Amount of time spent per operation on the file system, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-6, 6, 2),
		},
		[]string{"operation", "status_code"})
	fileSystemOpenFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "buildbarn",
			Subsystem: "sectorfs",
			Name:      "file_system_open_files",
			Help:      "Number of files that are currently registered in the descriptor table.",
		})
)

// operationHistogram holds references to Prometheus metrics for a
// single file system operation.
type operationHistogram struct {
	ok      prometheus.Observer
	failure prometheus.ObserverVec
}

func newOperationHistogram(operation string) operationHistogram {
	return operationHistogram{
		ok:      fileSystemOperationsDurationSeconds.WithLabelValues(operation, "OK"),
		failure: fileSystemOperationsDurationSeconds.MustCurryWith(map[string]string{"operation": operation}),
	}
}

func (m *operationHistogram) observe(err error, timeStart, timeStop time.Time) {
	d := timeStop.Sub(timeStart).Seconds()
	if err == nil {
		m.ok.Observe(d)
	} else {
		m.failure.WithLabelValues(status.Code(err).String()).Observe(d)
	}
}

var (
	// Already populate the HistogramVec with entries for all operations.
	operationHistogramCreate = newOperationHistogram("Create")
	operationHistogramOpen   = newOperationHistogram("Open")
	operationHistogramClose  = newOperationHistogram("Close")
	operationHistogramRead   = newOperationHistogram("Read")
	operationHistogramWrite  = newOperationHistogram("Write")
	operationHistogramRemove = newOperationHistogram("Remove")
	operationHistogramList   = newOperationHistogram("List")
	operationHistogramPrint  = newOperationHistogram("Print")
)

type metricsFileSystem struct {
	base  FileSystem
	clock clock.Clock
}

// NewMetricsFileSystem creates a decorator for FileSystem that exposes
// Prometheus metrics for each of the operations invoked, and the
// number of files that are opened.
func NewMetricsFileSystem(base FileSystem, clock clock.Clock) FileSystem {
	fileSystemPrometheusMetrics.Do(func() {
		prometheus.MustRegister(fileSystemOperationsDurationSeconds)
		prometheus.MustRegister(fileSystemOpenFiles)
	})

	return &metricsFileSystem{
		base:  base,
		clock: clock,
	}
}

func (fs *metricsFileSystem) Create(p string, sizeBytes int, isDirectory bool) error {
	timeStart := fs.clock.Now()
	err := fs.base.Create(p, sizeBytes, isDirectory)
	operationHistogramCreate.observe(err, timeStart, fs.clock.Now())
	return err
}

func (fs *metricsFileSystem) Open(p string) (*OpenFile, OpenFileID, error) {
	timeStart := fs.clock.Now()
	f, id, err := fs.base.Open(p)
	operationHistogramOpen.observe(err, timeStart, fs.clock.Now())
	if err == nil {
		fileSystemOpenFiles.Inc()
	}
	return f, id, err
}

func (fs *metricsFileSystem) Close(id OpenFileID) error {
	timeStart := fs.clock.Now()
	err := fs.base.Close(id)
	operationHistogramClose.observe(err, timeStart, fs.clock.Now())
	if err == nil {
		fileSystemOpenFiles.Dec()
	}
	return err
}

func (fs *metricsFileSystem) Read(id OpenFileID, p []byte) (int, error) {
	timeStart := fs.clock.Now()
	n, err := fs.base.Read(id, p)
	if err == io.EOF {
		operationHistogramRead.observe(nil, timeStart, fs.clock.Now())
	} else {
		operationHistogramRead.observe(err, timeStart, fs.clock.Now())
	}
	return n, err
}

func (fs *metricsFileSystem) Write(id OpenFileID, p []byte) (int, error) {
	timeStart := fs.clock.Now()
	n, err := fs.base.Write(id, p)
	operationHistogramWrite.observe(err, timeStart, fs.clock.Now())
	return n, err
}

func (fs *metricsFileSystem) Remove(recursive bool, p string) error {
	timeStart := fs.clock.Now()
	err := fs.base.Remove(recursive, p)
	operationHistogramRemove.observe(err, timeStart, fs.clock.Now())
	return err
}

func (fs *metricsFileSystem) List(w io.Writer, recursive bool, p string) error {
	timeStart := fs.clock.Now()
	err := fs.base.List(w, recursive, p)
	operationHistogramList.observe(err, timeStart, fs.clock.Now())
	return err
}

func (fs *metricsFileSystem) Print(w io.Writer) error {
	timeStart := fs.clock.Now()
	err := fs.base.Print(w)
	operationHistogramPrint.observe(err, timeStart, fs.clock.Now())
	return err
}

func (fs *metricsFileSystem) Unmount() error {
	err := fs.base.Unmount()
	if err == nil {
		fileSystemOpenFiles.Set(0)
	}
	return err
}
