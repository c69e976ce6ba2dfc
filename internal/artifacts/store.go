// Package artifacts persists per-device JSON descriptors and image
// files under a fixed on-disk layout,
//
//	<root>/<deviceID>/device_profile.json
//	<root>/<deviceID>/wireless_device.json
//	<root>/<deviceID>/<deviceID>_mfg.bin
//	<root>/<deviceID>/<deviceID>_mfg.hex
package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	deviceProfileFilename  = "device_profile.json"
	wirelessDeviceFilename = "wireless_device.json"

	dirPerm  = 0o750
	filePerm = 0o640
)

var (
	ErrArtifactWrite = errors.New("artifact write error")
)

// Store persists per-device artifacts on local disk, keyed by device
// identifier. Writes overwrite, there is no versioning.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) DeviceDir(deviceID string) string {
	return filepath.Join(s.root, deviceID)
}

func (s *Store) DeviceProfilePath(deviceID string) string {
	return filepath.Join(s.DeviceDir(deviceID), deviceProfileFilename)
}

func (s *Store) WirelessDevicePath(deviceID string) string {
	return filepath.Join(s.DeviceDir(deviceID), wirelessDeviceFilename)
}

func (s *Store) MfgBinPath(deviceID string) string {
	return filepath.Join(s.DeviceDir(deviceID), deviceID+"_mfg.bin")
}

func (s *Store) MfgHexPath(deviceID string) string {
	return filepath.Join(s.DeviceDir(deviceID), deviceID+"_mfg.hex")
}

// SaveJSON writes v as indented JSON to path, creating parent
// directories as needed, and returns the path written.
func (s *Store) SaveJSON(path string, v interface{}) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", errors.Wrap(ErrArtifactWrite, err.Error())
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(ErrArtifactWrite, err.Error())
	}

	if err := os.WriteFile(path, b, filePerm); err != nil {
		return "", errors.Wrap(ErrArtifactWrite, err.Error())
	}

	return path, nil
}
