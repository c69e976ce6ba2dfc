package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iot"
	"github.com/aws/aws-sdk-go/service/iotwireless"
	"github.com/edge-toolbox/commissioner/internal/metrics"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// wirelessAPI is the subset of the iotwireless API the client depends on.
type wirelessAPI interface {
	CreateWirelessDeviceWithContext(ctx aws.Context, input *iotwireless.CreateWirelessDeviceInput, opts ...request.Option) (*iotwireless.CreateWirelessDeviceOutput, error)
	AssociateWirelessDeviceWithThingWithContext(ctx aws.Context, input *iotwireless.AssociateWirelessDeviceWithThingInput, opts ...request.Option) (*iotwireless.AssociateWirelessDeviceWithThingOutput, error)
	GetDeviceProfileWithContext(ctx aws.Context, input *iotwireless.GetDeviceProfileInput, opts ...request.Option) (*iotwireless.GetDeviceProfileOutput, error)
	GetWirelessDeviceWithContext(ctx aws.Context, input *iotwireless.GetWirelessDeviceInput, opts ...request.Option) (*iotwireless.GetWirelessDeviceOutput, error)
}

// thingAPI is the subset of the iot API the client depends on.
type thingAPI interface {
	CreateThingWithContext(ctx aws.Context, input *iot.CreateThingInput, opts ...request.Option) (*iot.CreateThingOutput, error)
}

// awsClient implements the Client interface over the AWS IoT Wireless
// and AWS IoT service APIs.
type awsClient struct {
	wireless wirelessAPI
	things   thingAPI
	timeout  time.Duration
	logger   *logrus.Entry
}

func NewAWSClient(sess *session.Session, timeout time.Duration, logger *logrus.Entry) Client {
	return &awsClient{
		wireless: iotwireless.New(sess),
		things:   iot.New(sess),
		timeout:  timeout,
		logger:   logger,
	}
}

func (c *awsClient) CreateWirelessDevice(ctx context.Context, name, destination, profileID string) (model.WirelessDeviceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.wireless.CreateWirelessDeviceWithContext(ctx, &iotwireless.CreateWirelessDeviceInput{
		Type:            aws.String(iotwireless.WirelessDeviceTypeSidewalk),
		Name:            aws.String(name),
		DestinationName: aws.String(destination),
		Sidewalk: &iotwireless.SidewalkCreateWirelessDevice{
			DeviceProfileId: aws.String(profileID),
		},
	})
	if err != nil {
		return model.WirelessDeviceRecord{}, wrapAWSErr("CreateWirelessDevice", err)
	}

	record := model.WirelessDeviceRecord{
		ID:  aws.StringValue(out.Id),
		Arn: aws.StringValue(out.Arn),
	}

	c.logger.WithFields(logrus.Fields{
		"wireless_device_id":  record.ID,
		"wireless_device_arn": record.Arn,
	}).Debug("created wireless device")

	return record, nil
}

func (c *awsClient) CreateThing(ctx context.Context, name string, attributes map[string]string) (model.ThingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attrs := map[string]*string{}
	for k, v := range attributes {
		attrs[k] = aws.String(v)
	}

	out, err := c.things.CreateThingWithContext(ctx, &iot.CreateThingInput{
		ThingName: aws.String(name),
		AttributePayload: &iot.AttributePayload{
			Attributes: attrs,
			Merge:      aws.Bool(true),
		},
	})
	if err != nil {
		return model.ThingRecord{}, wrapAWSErr("CreateThing", err)
	}

	record := model.ThingRecord{Arn: aws.StringValue(out.ThingArn)}

	c.logger.WithField("thing_arn", record.Arn).Debug("created thing")

	return record, nil
}

func (c *awsClient) Associate(ctx context.Context, thingArn, wirelessDeviceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.wireless.AssociateWirelessDeviceWithThingWithContext(ctx, &iotwireless.AssociateWirelessDeviceWithThingInput{
		Id:       aws.String(wirelessDeviceID),
		ThingArn: aws.String(thingArn),
	})
	if err != nil {
		return wrapAWSErr("AssociateWirelessDeviceWithThing", err)
	}

	return nil
}

func (c *awsClient) GetDeviceProfile(ctx context.Context, profileID string) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.wireless.GetDeviceProfileWithContext(ctx, &iotwireless.GetDeviceProfileInput{
		Id: aws.String(profileID),
	})
	if err != nil {
		return nil, wrapAWSErr("GetDeviceProfile", err)
	}

	return out, nil
}

func (c *awsClient) GetWirelessDevice(ctx context.Context, wirelessDeviceID string) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.wireless.GetWirelessDeviceWithContext(ctx, &iotwireless.GetWirelessDeviceInput{
		Identifier:     aws.String(wirelessDeviceID),
		IdentifierType: aws.String(iotwireless.WirelessDeviceIdTypeWirelessDeviceId),
	})
	if err != nil {
		return nil, wrapAWSErr("GetWirelessDevice", err)
	}

	return out, nil
}

// wrapAWSErr wraps a remote error into ErrRegistry preserving the AWS
// error code and message verbatim, the caller does not interpret codes
// beyond "failed".
func wrapAWSErr(op string, err error) error {
	metrics.RegistryErrorCounter.With(prometheus.Labels{"operation": op}).Inc()

	if aerr, ok := err.(awserr.Error); ok {
		return errors.Wrap(ErrRegistry, fmt.Sprintf("%s: %s: %s", op, aerr.Code(), aerr.Message()))
	}

	return errors.Wrap(ErrRegistry, op+": "+err.Error())
}
