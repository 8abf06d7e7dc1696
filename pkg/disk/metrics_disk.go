package disk

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	diskPrometheusMetrics sync.Once

	diskSectorsRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "sectorfs",
			Name:      "disk_sectors_read_total",
			Help:      "Number of sectors read from the disk.",
		})
	diskSectorsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "sectorfs",
			Name:      "disk_sectors_written_total",
			Help:      "Number of sectors written to the disk.",
		})
	diskErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "sectorfs",
			Name:      "disk_errors_total",
			Help:      "Number of disk operations that failed.",
		},
		[]string{"operation"})
)

type metricsDisk struct {
	Disk
}

// NewMetricsDisk creates a decorator for Disk that exposes Prometheus
// metrics on the number of sectors read and written.
func NewMetricsDisk(base Disk) Disk {
	diskPrometheusMetrics.Do(func() {
		prometheus.MustRegister(diskSectorsRead)
		prometheus.MustRegister(diskSectorsWritten)
		prometheus.MustRegister(diskErrors)
	})

	return &metricsDisk{
		Disk: base,
	}
}

func (d *metricsDisk) ReadSector(sector Sector, p []byte) error {
	if err := d.Disk.ReadSector(sector, p); err != nil {
		diskErrors.WithLabelValues("ReadSector").Inc()
		return err
	}
	diskSectorsRead.Inc()
	return nil
}

func (d *metricsDisk) WriteSector(sector Sector, p []byte) error {
	if err := d.Disk.WriteSector(sector, p); err != nil {
		diskErrors.WithLabelValues("WriteSector").Inc()
		return err
	}
	diskSectorsWritten.Inc()
	return nil
}

func (d *metricsDisk) Sync() error {
	if err := d.Disk.Sync(); err != nil {
		diskErrors.WithLabelValues("Sync").Inc()
		return err
	}
	return nil
}
