package configuration

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/google/go-jsonnet"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ApplicationConfiguration is the top-level configuration of
// bb_sectorfs.
type ApplicationConfiguration struct {
	// Disk image on which the file system is stored.
	Disk *DiskConfiguration `json:"disk"`

	// Maximum number of files that may be opened at the same time.
	MaximumOpenFiles int `json:"maximumOpenFiles"`

	// Address on which "bb_sectorfs serve" exposes diagnostics and
	// Prometheus metrics.
	HTTPListenAddress string `json:"httpListenAddress"`
}

// DiskConfiguration describes the geometry of the disk and the image
// file that backs it.
type DiskConfiguration struct {
	ImagePath       string `json:"imagePath"`
	SectorSizeBytes int    `json:"sectorSizeBytes"`
	SectorCount     int    `json:"sectorCount"`
}

// GetSectorFSConfiguration reads the configuration from file and fill
// in default values.
func GetSectorFSConfiguration(path string) (*ApplicationConfiguration, error) {
	var applicationConfiguration ApplicationConfiguration
	if err := UnmarshalConfigurationFromFile(path, &applicationConfiguration); err != nil {
		return nil, util.StatusWrap(err, "Failed to retrieve configuration")
	}
	setDefaultSectorFSValues(&applicationConfiguration)
	if err := validateSectorFSValues(&applicationConfiguration); err != nil {
		return nil, err
	}
	return &applicationConfiguration, nil
}

// UnmarshalConfigurationFromFile evaluates a Jsonnet file and stores
// the resulting JSON object in a configuration struct. Environment
// variables are exposed to the Jsonnet file as external variables.
// Fields that are not known to the configuration struct are rejected.
func UnmarshalConfigurationFromFile(path string, configuration any) error {
	vm := jsonnet.MakeVM()
	for _, environmentVariable := range os.Environ() {
		if key, value, ok := strings.Cut(environmentVariable, "="); ok {
			vm.ExtVar(key, value)
		}
	}
	serialized, err := vm.EvaluateFile(path)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "Failed to evaluate configuration: %s", err)
	}
	decoder := json.NewDecoder(bytes.NewBufferString(serialized))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(configuration); err != nil {
		return status.Errorf(codes.InvalidArgument, "Failed to unmarshal configuration: %s", err)
	}
	return nil
}

func setDefaultSectorFSValues(applicationConfiguration *ApplicationConfiguration) {
	if applicationConfiguration.Disk == nil {
		applicationConfiguration.Disk = &DiskConfiguration{}
	}
	if applicationConfiguration.Disk.SectorSizeBytes == 0 {
		applicationConfiguration.Disk.SectorSizeBytes = 128
	}
	if applicationConfiguration.Disk.SectorCount == 0 {
		applicationConfiguration.Disk.SectorCount = 1024
	}
	if applicationConfiguration.MaximumOpenFiles == 0 {
		applicationConfiguration.MaximumOpenFiles = 20
	}
	if applicationConfiguration.HTTPListenAddress == "" {
		applicationConfiguration.HTTPListenAddress = ":8080"
	}
}

func validateSectorFSValues(applicationConfiguration *ApplicationConfiguration) error {
	if applicationConfiguration.Disk.ImagePath == "" {
		return status.Error(codes.InvalidArgument, "No disk image path provided")
	}
	if applicationConfiguration.MaximumOpenFiles < 0 {
		return status.Errorf(codes.InvalidArgument, "Maximum number of open files is negative: %d", applicationConfiguration.MaximumOpenFiles)
	}
	return nil
}
