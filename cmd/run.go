package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edge-toolbox/commissioner/internal/app"
	"github.com/edge-toolbox/commissioner/internal/artifacts"
	"github.com/edge-toolbox/commissioner/internal/download"
	"github.com/edge-toolbox/commissioner/internal/ledger"
	"github.com/edge-toolbox/commissioner/internal/metrics"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/edge-toolbox/commissioner/internal/pipeline"
	"github.com/edge-toolbox/commissioner/internal/probe"
	"github.com/edge-toolbox/commissioner/internal/provision"
	"github.com/edge-toolbox/commissioner/internal/registry"
	"github.com/edge-toolbox/commissioner/internal/version"
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run the interactive production line loop, commissioning one device per prompt",
	Run: func(cmd *cobra.Command, args []string) {
		runCommissioner(cmd.Context())
	},
}

func runCommissioner(ctx context.Context) {
	var logLevel int

	switch {
	case trace:
		logLevel = model.LogLevelTrace
	case debug:
		logLevel = model.LogLevelDebug
	default:
		logLevel = model.LogLevelInfo
	}

	commissioner, err := app.New(cfgFile, logLevel)
	if err != nil {
		log.Fatal(err)
	}

	cfg := commissioner.Config

	// serve metrics endpoint
	metrics.ListenAndServe(cfg.MetricsListenAddr)
	version.ExportBuildInfoMetric()

	// Setup cancel context with cancel func.
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	// routine listens for termination signal and cancels the context
	go func() {
		<-commissioner.TermCh
		commissioner.Logger.Info("got TERM signal, aborting after the current stage...")
		cancelFunc()
	}()

	firmwareHexPath, err := resolveFirmwareHex(ctx, cfg)
	if err != nil {
		commissioner.Logger.Fatal(err)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Profile:           cfg.AWS.Profile,
		Config:            aws.Config{Region: aws.String(cfg.AWS.Region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		commissioner.Logger.Fatal(err)
	}

	registryLogger := commissioner.Logger.WithField("component", "registry")
	flashLogger := commissioner.Logger.WithField("component", "probe")

	driver := probe.NewNrfjprogDriver(cfg.Probe.NrfjprogPath, cfg.Probe.Family, flashLogger)

	pl := pipeline.New(pipeline.Params{
		Registry:        registry.NewAWSClient(sess, cfg.AWS.RequestTimeout, registryLogger),
		Ledger:          ledger.NewDynamoDBLedger(sess, cfg.AWS.DynamoDBTable, cfg.AWS.RequestTimeout),
		Artifacts:       artifacts.NewStore(cfg.DeviceFilesDir),
		Generator:       provision.NewInvoker(cfg.Provision.ToolPath, cfg.Provision.Timeout, commissioner.Logger.WithField("component", "provision")),
		Flasher:         probe.NewProgrammer(driver, cfg.Probe.Serial, cfg.Probe.ConnectTimeout, flashLogger),
		DestinationName: cfg.Sidewalk.DestinationName,
		DeviceProfileID: cfg.Sidewalk.DeviceProfileID,
		FirmwareHexPath: firmwareHexPath,
		Logger:          commissioner.Logger.WithField("component", "pipeline"),
	})

	operatorLoop(ctx, pl, commissioner.Logger)
}

// operatorLoop accepts one device identifier per iteration until the
// quit sentinel or a termination signal.
func operatorLoop(ctx context.Context, pl *pipeline.Pipeline, logger *logrus.Logger) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			fmt.Println("\nExiting production line loop.")
			return
		}

		fmt.Print("\nEnter device ID (or 'q' to quit): ")

		if !scanner.Scan() {
			fmt.Println("\nExiting production line loop.")
			return
		}

		deviceID := strings.TrimSpace(scanner.Text())

		if strings.EqualFold(deviceID, "q") {
			fmt.Println("\nExiting production line loop.")
			return
		}

		outcome := pl.Run(ctx, deviceID)

		switch outcome.State {
		case model.OutcomeSuccess:
			fmt.Printf("\nDevice %s commissioned successfully.\n", deviceID)
		case model.OutcomeRejected:
			fmt.Printf("\nRejected: %s\n", outcome.Reason)
		case model.OutcomePartialFailure:
			logger.WithError(outcome.Cause).WithFields(logrus.Fields{
				"device_id": deviceID,
				"stage":     string(outcome.Stage),
			}).Error("commissioning failed")
			fmt.Printf("\nDevice %s failed at stage %q: %s\nRetry the same device ID to resume.\n",
				deviceID, outcome.Stage, outcome.Cause)
		}
	}
}

// resolveFirmwareHex returns the local path of the application firmware
// hex, fetching it first when it is configured as a URL.
func resolveFirmwareHex(ctx context.Context, cfg *model.Config) (string, error) {
	hexPath := cfg.Firmware.HexPath

	if cfg.Firmware.HexURL != "" {
		if err := os.MkdirAll(cfg.DeviceFilesDir, 0o750); err != nil {
			return "", err
		}

		hexPath = filepath.Join(cfg.DeviceFilesDir, "firmware.hex")

		if err := download.FromURLToFile(ctx, cfg.Firmware.HexURL, hexPath); err != nil {
			return "", err
		}
	}

	if cfg.Firmware.Checksum != "" {
		if err := download.ChecksumValidate(hexPath, cfg.Firmware.Checksum); err != nil {
			return "", err
		}
	}

	return hexPath, nil
}

func init() {
	rootCmd.AddCommand(cmdRun)
}
