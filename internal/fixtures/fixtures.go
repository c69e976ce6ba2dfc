package fixtures

import "github.com/edge-toolbox/commissioner/internal/model"

var (
	DeviceID = "DEV-001"

	Destination     = "SidewalkDestination"
	DeviceProfileID = "profile-0001"

	WirelessDevice = model.WirelessDeviceRecord{
		ID:  "wd-123",
		Arn: "arn:aws:iotwireless:us-east-1:111122223333:WirelessDevice/wd-123",
	}

	Thing = model.ThingRecord{
		Arn: "arn:aws:iot:us-east-1:111122223333:thing/thing-001",
	}

	ProbeSerial = "SN42"

	DeviceProfileDescriptor = map[string]interface{}{
		"Id":   DeviceProfileID,
		"Name": "line-profile",
	}

	WirelessDeviceDescriptor = map[string]interface{}{
		"Id":  WirelessDevice.ID,
		"Arn": WirelessDevice.Arn,
	}
)
