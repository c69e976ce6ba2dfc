package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "commissioner.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

const validConfig = `
device_files_dir: /var/lib/commissioner/device_files
aws:
  profile: factory
  region: us-east-1
  dynamodb_table: device-inventory
  request_timeout: 10s
sidewalk:
  destination_name: SidewalkDestination
  device_profile_id: profile-0001
provision:
  tool_path: /opt/tools/provision.py
probe:
  serial: SN42
firmware:
  hex_path: /opt/firmware/app.hex
`

func TestConfigLoad(t *testing.T) {
	cfg := &Config{}

	require.NoError(t, cfg.Load(writeConfig(t, validConfig)))

	assert.Equal(t, "factory", cfg.AWS.Profile)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "device-inventory", cfg.AWS.DynamoDBTable)
	assert.Equal(t, 10*time.Second, cfg.AWS.RequestTimeout)
	assert.Equal(t, "SidewalkDestination", cfg.Sidewalk.DestinationName)
	assert.Equal(t, "profile-0001", cfg.Sidewalk.DeviceProfileID)
	assert.Equal(t, "/opt/tools/provision.py", cfg.Provision.ToolPath)
	assert.Equal(t, "SN42", cfg.Probe.Serial)
	assert.Equal(t, "/opt/firmware/app.hex", cfg.Firmware.HexPath)

	// defaults
	assert.Equal(t, defaultToolTimeout, cfg.Provision.Timeout)
	assert.Equal(t, defaultProbeFamily, cfg.Probe.Family)
	assert.Equal(t, defaultNrfjprogPath, cfg.Probe.NrfjprogPath)
	assert.Equal(t, defaultConnectTimeout, cfg.Probe.ConnectTimeout)
}

func TestConfigLoadReportsAllMissingSettings(t *testing.T) {
	cfg := &Config{}

	err := cfg.Load(writeConfig(t, "aws:\n  region: us-east-1\n"))
	require.Error(t, err)

	// every missing required setting is named at once
	for _, want := range []string{
		"aws.dynamodb_table",
		"sidewalk.destination_name",
		"sidewalk.device_profile_id",
		"provision.tool_path",
		"firmware.hex_path or firmware.hex_url",
	} {
		assert.Contains(t, err.Error(), want)
	}

	assert.NotContains(t, err.Error(), "aws.region")
}

func TestConfigLoadFirmwareURLAccepted(t *testing.T) {
	contents := `
aws:
  region: us-east-1
  dynamodb_table: device-inventory
sidewalk:
  destination_name: SidewalkDestination
  device_profile_id: profile-0001
provision:
  tool_path: /opt/tools/provision.py
firmware:
  hex_url: https://firmware.example.com/app.hex
  checksum: "md5sum:1649cff06611a6025da3dd511a97fb43"
`

	cfg := &Config{}
	require.NoError(t, cfg.Load(writeConfig(t, contents)))
	assert.Equal(t, "https://firmware.example.com/app.hex", cfg.Firmware.HexURL)
}

func TestConfigLoadMissingFile(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Load(filepath.Join(t.TempDir(), "nope.yml")))
}
