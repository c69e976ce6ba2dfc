// Package provision invokes the external manufacturing image generator
// that embeds device credentials into a binary/hex image pair.
package provision

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrToolExit indicates the provisioning tool exited non-zero.
	ErrToolExit = errors.New("provisioning tool error")

	// ErrOutputMissing indicates the tool reported success but an
	// expected output file does not exist. The tool exit code alone is
	// not trusted.
	ErrOutputMissing = errors.New("provisioning tool output file missing")
)

// Params identify the inputs and outputs of one image generation.
type Params struct {
	DeviceProfileJSON  string
	WirelessDeviceJSON string
	OutputBin          string
	OutputHex          string
}

// Invoker runs the provisioning tool as a subprocess. It is a pure
// function of its input file paths, it knows nothing of cloud or
// hardware state.
type Invoker struct {
	toolPath string
	timeout  time.Duration
	logger   *logrus.Entry
}

func NewInvoker(toolPath string, timeout time.Duration, logger *logrus.Entry) *Invoker {
	return &Invoker{
		toolPath: toolPath,
		timeout:  timeout,
		logger:   logger,
	}
}

// Generate produces the manufacturing image pair for a device and
// returns the bin and hex paths after verifying both exist.
func (i *Invoker) Generate(ctx context.Context, p Params) (binPath, hexPath string, err error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	// nolint:gosec // tool path and arguments are operator configuration.
	cmd := exec.CommandContext(
		ctx,
		i.toolPath,
		"nordic",
		"aws",
		"--wireless_device_json", p.WirelessDeviceJSON,
		"--device_profile_json", p.DeviceProfileJSON,
		"--output_bin", p.OutputBin,
		"--output_hex", p.OutputHex,
	)

	i.logger.WithField("cmd", cmd.String()).Debug("running provisioning tool")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", "", errors.Wrap(ErrToolExit, err.Error()+": "+string(out))
	}

	for _, f := range []string{p.OutputBin, p.OutputHex} {
		if _, statErr := os.Stat(f); statErr != nil {
			i.logger.WithField("output", string(out)).Warn("provisioning tool exited zero without producing output")

			return "", "", errors.Wrap(ErrOutputMissing, f)
		}
	}

	return p.OutputBin, p.OutputHex, nil
}
