package probe

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NrfjprogDriver implements the Driver interface over the nrfjprog CLI.
//
// The CLI is stateless, every operation after Connect is pinned to the
// connected probe with --snr.
type NrfjprogDriver struct {
	binPath string
	family  string
	serial  string
	logger  *logrus.Entry
}

func NewNrfjprogDriver(binPath, family string, logger *logrus.Entry) *NrfjprogDriver {
	return &NrfjprogDriver{
		binPath: binPath,
		family:  family,
		logger:  logger,
	}
}

func (d *NrfjprogDriver) Enumerate(ctx context.Context) ([]string, error) {
	out, err := d.exec(ctx, "--ids")
	if err != nil {
		return nil, err
	}

	serials := []string{}

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			serials = append(serials, line)
		}
	}

	return serials, nil
}

func (d *NrfjprogDriver) Connect(ctx context.Context, serial string) error {
	d.serial = serial

	// a cheap read verifies the probe answers before destructive steps
	if _, err := d.exec(ctx, "--snr", d.serial, "--deviceversion"); err != nil {
		d.serial = ""
		return err
	}

	return nil
}

func (d *NrfjprogDriver) Recover(ctx context.Context) error {
	_, err := d.exec(ctx, "--snr", d.serial, "--recover")
	return err
}

func (d *NrfjprogDriver) EraseAll(ctx context.Context) error {
	_, err := d.exec(ctx, "--snr", d.serial, "--eraseall")
	return err
}

func (d *NrfjprogDriver) ProgramFile(ctx context.Context, path string) error {
	_, err := d.exec(ctx, "--snr", d.serial, "--program", path, "--verify")
	return err
}

func (d *NrfjprogDriver) Run(ctx context.Context) error {
	_, err := d.exec(ctx, "--snr", d.serial, "--run")
	return err
}

func (d *NrfjprogDriver) SysReset(ctx context.Context) error {
	_, err := d.exec(ctx, "--snr", d.serial, "--reset")
	return err
}

func (d *NrfjprogDriver) Close() error {
	d.serial = ""
	return nil
}

func (d *NrfjprogDriver) exec(ctx context.Context, args ...string) (string, error) {
	args = append([]string{"--family", d.family}, args...)

	// nolint:gosec // binary path is operator configuration.
	cmd := exec.CommandContext(ctx, d.binPath, args...)

	d.logger.WithField("cmd", cmd.String()).Trace("running probe command")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrap(ErrProbe, strings.Join(args, " ")+": "+err.Error()+": "+string(out))
	}

	return string(out), nil
}
