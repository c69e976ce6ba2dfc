package pipeline

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/edge-toolbox/commissioner/internal/metrics"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/edge-toolbox/commissioner/internal/provision"
)

const thingDeviceTypeAttribute = "sidewalk"

// register creates the wireless device registry record and immediately
// checkpoints it in the inventory ledger, so the cloud resource's
// existence is durable before any later stage can fail.
func (p *Pipeline) register(h *HandlerContext) error {
	record, err := p.registry.CreateWirelessDevice(h.Ctx, h.Task.DeviceID, p.destination, p.deviceProfileID)
	if err != nil {
		return err
	}

	h.Task.WirelessDevice = record

	row := p.rowForTask(h.Task, model.RowStatusActive, model.StageRegister)

	if err := p.ledger.Put(h.Ctx, row); err != nil {
		metrics.LedgerErrorCounter.Inc()

		// the most dangerous failure class: the cloud resource now
		// exists with no durable record of it
		p.logger.WithError(err).WithFields(logrus.Fields{
			"device_id":           h.Task.DeviceID,
			"wireless_device_id":  record.ID,
			"wireless_device_arn": record.Arn,
		}).Error("wireless device created but the ledger checkpoint write failed, cloud resource is unrecorded and requires manual reconciliation")

		return errors.Wrap(err, "inventory checkpoint")
	}

	return nil
}

func (p *Pipeline) createThing(h *HandlerContext) error {
	attributes := map[string]string{
		"deviceType": thingDeviceTypeAttribute,
		"createdAt":  time.Now().UTC().Format(time.RFC3339),
	}

	record, err := p.registry.CreateThing(h.Ctx, h.Task.DeviceID, attributes)
	if err != nil {
		return err
	}

	h.Task.Thing = record

	return nil
}

func (p *Pipeline) associate(h *HandlerContext) error {
	return p.registry.Associate(h.Ctx, h.Task.Thing.Arn, h.Task.WirelessDevice.ID)
}

// record rewrites the inventory row with the completed thing ARN, the
// register stage row was the intermediate checkpoint.
func (p *Pipeline) record(h *HandlerContext) error {
	row := p.rowForTask(h.Task, model.RowStatusActive, model.StageRecord)

	if err := p.ledger.Put(h.Ctx, row); err != nil {
		metrics.LedgerErrorCounter.Inc()

		return errors.Wrap(err, "inventory record")
	}

	return nil
}

// fetchDescriptors retrieves the device profile (shared across the
// production line) and the per-device wireless device descriptor, and
// persists both to the artifact store as provisioning tool inputs.
func (p *Pipeline) fetchDescriptors(h *HandlerContext) error {
	profile, err := p.registry.GetDeviceProfile(h.Ctx, p.deviceProfileID)
	if err != nil {
		return err
	}

	device, err := p.registry.GetWirelessDevice(h.Ctx, h.Task.WirelessDevice.ID)
	if err != nil {
		return err
	}

	if _, err := p.store.SaveJSON(p.store.DeviceProfilePath(h.Task.DeviceID), profile); err != nil {
		return err
	}

	if _, err := p.store.SaveJSON(p.store.WirelessDevicePath(h.Task.DeviceID), device); err != nil {
		return err
	}

	return nil
}

func (p *Pipeline) provision(h *HandlerContext) error {
	deviceID := h.Task.DeviceID

	binPath, hexPath, err := p.generator.Generate(h.Ctx, provision.Params{
		DeviceProfileJSON:  p.store.DeviceProfilePath(deviceID),
		WirelessDeviceJSON: p.store.WirelessDevicePath(deviceID),
		OutputBin:          p.store.MfgBinPath(deviceID),
		OutputHex:          p.store.MfgHexPath(deviceID),
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"bin":       binPath,
		"hex":       hexPath,
	}).Info("manufacturing image generated")

	return nil
}

// flash programs the chip with the manufacturing and firmware images,
// then writes the terminal inventory row a rerun short-circuits on.
func (p *Pipeline) flash(h *HandlerContext) error {
	if err := p.flasher.Flash(h.Ctx, p.store.MfgHexPath(h.Task.DeviceID), p.firmwareHexPath); err != nil {
		return err
	}

	row := p.rowForTask(h.Task, model.RowStatusActive, model.StageFlash)

	if err := p.ledger.Put(h.Ctx, row); err != nil {
		metrics.LedgerErrorCounter.Inc()

		// the chip is programmed, only the terminal checkpoint is
		// missing, a rerun will resume and reflash harmlessly
		p.logger.WithError(err).WithField("device_id", h.Task.DeviceID).Error("device flashed but the terminal ledger write failed")

		return errors.Wrap(err, "inventory terminal record")
	}

	return nil
}
