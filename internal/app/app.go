package app

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/edge-toolbox/commissioner/internal/model"
	"github.com/sirupsen/logrus"
)

// App holds attributes for the commissioner application
type App struct {
	// Sync waitgroup to wait for running go routines on termination.
	SyncWG *sync.WaitGroup
	// Commissioner configuration.
	Config *model.Config
	// TermCh is the channel to terminate the app based on a signal
	TermCh chan os.Signal
	// Logger is the app logger
	Logger *logrus.Logger
}

// New returns a new instance of the commissioner app
func New(cfgFile string, loglevel int) (*App, error) {
	cfg := &model.Config{}

	if err := cfg.Load(cfgFile); err != nil {
		return nil, err
	}

	cfg.LogLevel = loglevel

	app := &App{
		Config: cfg,
		SyncWG: &sync.WaitGroup{},
		Logger: logrus.New(),
		TermCh: make(chan os.Signal, 1),
	}

	// set log level, format
	switch loglevel {
	case model.LogLevelDebug:
		app.Logger.Level = logrus.DebugLevel
	case model.LogLevelTrace:
		app.Logger.Level = logrus.TraceLevel
	default:
		app.Logger.Level = logrus.InfoLevel
	}

	app.Logger.SetFormatter(
		&runtime.Formatter{ChildFormatter: &logrus.JSONFormatter{}},
	)

	// register for SIGINT, SIGTERM
	signal.Notify(app.TermCh, syscall.SIGINT, syscall.SIGTERM)

	return app, nil
}
