package probe

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// settleDelay is the pause either side of the system reset, the probe
// reset line requires settling time before the next command is accepted.
const settleDelay = 100 * time.Millisecond

// Programmer flashes a target chip with a manufacturing image followed
// by the application firmware image, through exactly one attached probe.
type Programmer struct {
	driver Driver

	// serial pins flashing to a specific probe, empty selects the first
	// enumerated probe.
	serial string

	connectTimeout time.Duration
	logger         *logrus.Entry
}

func NewProgrammer(driver Driver, serial string, connectTimeout time.Duration, logger *logrus.Entry) *Programmer {
	return &Programmer{
		driver:         driver,
		serial:         serial,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Flash erases the chip and programs both hex images, then runs the
// reset sequence. Any step failure aborts the remaining steps, the
// returned error names the step. A failed flash must be re-run from
// enumeration after operator intervention, skipping erase or leaving
// the chip mid-reset is unsafe.
func (p *Programmer) Flash(ctx context.Context, mfgHexPath, firmwareHexPath string) error {
	for _, f := range []string{mfgHexPath, firmwareHexPath} {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrap(ErrProbe, "hex file not found: "+f)
		}
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrProbe, "aborted before flashing: "+err.Error())
	}

	serial, err := p.selectProbe(ctx)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	if err := p.driver.Connect(connectCtx, serial); err != nil {
		return errors.Wrap(err, "connect")
	}

	defer func() {
		if closeErr := p.driver.Close(); closeErr != nil {
			p.logger.WithError(closeErr).Warn("probe close error")
		}
	}()

	// once erase starts the chip must not be left mid-sequence, so the
	// remaining steps run detached from operator cancellation
	flashCtx := context.Background()

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"recover", p.driver.Recover},
		{"eraseAll", p.driver.EraseAll},
		{"programMfg", func(c context.Context) error { return p.driver.ProgramFile(c, mfgHexPath) }},
		{"programFirmware", func(c context.Context) error { return p.driver.ProgramFile(c, firmwareHexPath) }},
		{"resetSequence", p.resetSequence},
	}

	for _, step := range steps {
		p.logger.WithFields(logrus.Fields{
			"serial": serial,
			"step":   step.name,
		}).Debug("running probe step")

		if err := step.run(flashCtx); err != nil {
			return errors.Wrap(err, step.name)
		}
	}

	return nil
}

// selectProbe enumerates attached probes and picks the configured
// serial, or the first enumerated probe when none is configured.
func (p *Programmer) selectProbe(ctx context.Context) (string, error) {
	serials, err := p.driver.Enumerate(ctx)
	if err != nil {
		return "", errors.Wrap(err, "enumerate")
	}

	if len(serials) == 0 {
		return "", ErrNoDeviceFound
	}

	if p.serial != "" {
		for _, s := range serials {
			if s == p.serial {
				return s, nil
			}
		}

		return "", errors.Wrap(ErrSerialNotFound, p.serial)
	}

	p.logger.WithField("serial", serials[0]).Info("no probe serial configured, selected first enumerated probe")

	return serials[0], nil
}

// resetSequence starts execution, issues a system reset and starts
// execution again, pausing for the reset line to settle in between.
func (p *Programmer) resetSequence(ctx context.Context) error {
	if err := p.driver.Run(ctx); err != nil {
		return err
	}

	time.Sleep(settleDelay)

	if err := p.driver.SysReset(ctx); err != nil {
		return err
	}

	time.Sleep(settleDelay)

	return p.driver.Run(ctx)
}
