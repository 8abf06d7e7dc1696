package diagnostics

import (
	"bytes"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/buildbarn/bb-sectorfs/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FileSystemStateService exposes the state of a mounted file system
// over HTTP, so that it can be inspected while being served.
//
// FileSystem is not thread-safe. All requests are serialized by the
// service.
type FileSystemStateService struct {
	lock       sync.Mutex
	fileSystem filesystem.FileSystem
}

// NewFileSystemStateService creates a FileSystemStateService and
// registers its handlers on a router. Prometheus metrics are exposed
// under /metrics.
func NewFileSystemStateService(fileSystem filesystem.FileSystem, router *mux.Router) *FileSystemStateService {
	s := &FileSystemStateService{
		fileSystem: fileSystem,
	}
	router.HandleFunc("/-/healthy", s.handleHealthy).Methods(http.MethodGet)
	router.HandleFunc("/filesystem", s.handlePrint).Methods(http.MethodGet)
	router.HandleFunc("/filesystem/list", s.handleList).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *FileSystemStateService) handleHealthy(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *FileSystemStateService) handlePrint(w http.ResponseWriter, req *http.Request) {
	var output bytes.Buffer
	s.lock.Lock()
	err := s.fileSystem.Print(&output)
	s.lock.Unlock()
	if err != nil {
		writeError(w, util.StatusWrap(err, "Failed to print file system"))
		return
	}
	writeText(w, output.Bytes())
}

func (s *FileSystemStateService) handleList(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	p := query.Get("path")
	if p == "" {
		p = "/"
	}
	recursive := false
	if recursiveParameter := query.Get("recursive"); recursiveParameter != "" {
		var err error
		recursive, err = strconv.ParseBool(recursiveParameter)
		if err != nil {
			writeError(w, status.Errorf(codes.InvalidArgument, "Invalid value for recursive: %#v", recursiveParameter))
			return
		}
	}

	var output bytes.Buffer
	s.lock.Lock()
	err := s.fileSystem.List(&output, recursive, p)
	s.lock.Unlock()
	if err != nil {
		writeError(w, util.StatusWrapf(err, "Failed to list %#v", p))
		return
	}
	writeText(w, output.Bytes())
}

func writeText(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(body); err != nil {
		log.Print(err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch status.Code(err) {
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.Internal, codes.DataLoss, codes.Unknown:
		code = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), code)
}
