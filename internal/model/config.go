package model

import (
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var (
	ErrConfig = errors.New("configuration error")
)

const (
	defaultDeviceFilesDir    = "device_files"
	defaultProbeFamily       = "NRF52"
	defaultNrfjprogPath      = "nrfjprog"
	defaultRequestTimeout    = 30 * time.Second
	defaultToolTimeout       = 5 * time.Minute
	defaultConnectTimeout    = 30 * time.Second
	defaultMetricsListenAddr = "0.0.0.0:9090"
)

// Config holds application configuration read from a YAML file or set by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Config struct {
	// File is the configuration file path
	File string
	// LogLevel is the app verbose logging level.
	LogLevel int

	// DeviceFilesDir is the root directory under which per-device
	// descriptor and image artifacts are written.
	DeviceFilesDir string `mapstructure:"device_files_dir"`

	// MetricsListenAddr is the address the metrics endpoint listens on.
	MetricsListenAddr string `mapstructure:"metrics_listen_addr"`

	AWS       AWS       `mapstructure:"aws"`
	Sidewalk  Sidewalk  `mapstructure:"sidewalk"`
	Provision Provision `mapstructure:"provision"`
	Probe     Probe     `mapstructure:"probe"`
	Firmware  Firmware  `mapstructure:"firmware"`
}

// AWS holds the cloud registry and inventory ledger parameters.
type AWS struct {
	// Profile is the shared credentials profile, empty means the default chain.
	Profile string `mapstructure:"profile"`
	Region  string `mapstructure:"region"`

	// DynamoDBTable is the inventory ledger table, one row per device.
	DynamoDBTable string `mapstructure:"dynamodb_table"`

	// RequestTimeout bounds each remote registry and ledger call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Sidewalk holds the wireless device registry parameters that are fixed
// for the whole production line.
type Sidewalk struct {
	DestinationName string `mapstructure:"destination_name"`
	DeviceProfileID string `mapstructure:"device_profile_id"`
}

// Provision holds the external manufacturing image generator parameters.
type Provision struct {
	ToolPath string        `mapstructure:"tool_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Probe holds the debug probe parameters.
type Probe struct {
	NrfjprogPath string `mapstructure:"nrfjprog_path"`
	Family       string `mapstructure:"family"`

	// Serial pins flashing to a specific probe serial number. When empty
	// the first enumerated probe is selected, which is only unambiguous
	// on single-probe benches.
	Serial string `mapstructure:"serial"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Firmware identifies the application firmware image flashed after the
// manufacturing image. Exactly one of HexPath or HexURL is required, a
// URL is fetched once at startup.
type Firmware struct {
	HexPath  string `mapstructure:"hex_path"`
	HexURL   string `mapstructure:"hex_url"`
	Checksum string `mapstructure:"checksum"`
}

func (c *Config) Load(cfgFile string) error {
	if cfgFile != "" {
		c.File = cfgFile
	} else {
		homedir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		c.File = homedir + "/" + ".commissioner.yml"
	}

	h, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer h.Close()

	v := viper.New()
	v.SetConfigFile(c.File)

	if errViper := v.ReadConfig(h); errViper != nil {
		return errors.Wrap(errViper, c.File)
	}

	if err = v.Unmarshal(c); err != nil {
		return errors.Wrap(err, c.File)
	}

	c.setDefaults()

	return c.validate()
}

func (c *Config) setDefaults() {
	if c.DeviceFilesDir == "" {
		c.DeviceFilesDir = defaultDeviceFilesDir
	}

	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = defaultMetricsListenAddr
	}

	if c.AWS.RequestTimeout == 0 {
		c.AWS.RequestTimeout = defaultRequestTimeout
	}

	if c.Provision.Timeout == 0 {
		c.Provision.Timeout = defaultToolTimeout
	}

	if c.Probe.NrfjprogPath == "" {
		c.Probe.NrfjprogPath = defaultNrfjprogPath
	}

	if c.Probe.Family == "" {
		c.Probe.Family = defaultProbeFamily
	}

	if c.Probe.ConnectTimeout == 0 {
		c.Probe.ConnectTimeout = defaultConnectTimeout
	}
}

// validate collects all missing required settings so the operator sees
// the complete list at once instead of fixing them one by one.
func (c *Config) validate() error {
	var result *multierror.Error

	required := []struct {
		name  string
		value string
	}{
		{"aws.region", c.AWS.Region},
		{"aws.dynamodb_table", c.AWS.DynamoDBTable},
		{"sidewalk.destination_name", c.Sidewalk.DestinationName},
		{"sidewalk.device_profile_id", c.Sidewalk.DeviceProfileID},
		{"provision.tool_path", c.Provision.ToolPath},
	}

	for _, r := range required {
		if r.value == "" {
			result = multierror.Append(result, errors.Wrap(ErrConfig, "missing required setting: "+r.name))
		}
	}

	if c.Firmware.HexPath == "" && c.Firmware.HexURL == "" {
		result = multierror.Append(result, errors.Wrap(ErrConfig, "missing required setting: firmware.hex_path or firmware.hex_url"))
	}

	return result.ErrorOrNil()
}
