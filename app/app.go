// Copyright 2021 The jackal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/auth"
	"github.com/jackal-xmpp/cmux/config"
	"github.com/jackal-xmpp/cmux/log"
	"github.com/jackal-xmpp/cmux/version"
	"github.com/pkg/errors"
)

const (
	defaultConfigFile = "/etc/cmux/cmux.yml"

	defaultBootstrapTimeout = time.Minute
	defaultShutdownTimeout  = time.Second * 30

	envConfigFile = "CMUX_CONFIG_FILE"
)

var logoStr = []string{
	`                               `,
	`   ___ _ __ ___  _   ___  __   `,
	`  / __| '_ ' _ \| | | \ \/ /   `,
	` | (__| | | | | | |_| |>  <    `,
	`  \___|_| |_| |_|\__,_/_/\_\   `,
	`                               `,
}

const usageStr = `
Usage: cmuxd [options]

Server Options:
    -c, --config <file>           Configuration file path
    --hash-password <password>    Print password bcrypt hash and exit
Common Options:
    -h, --help                    Show this message
    -v, --version                 Show version
`

type starter interface {
	Start(ctx context.Context) error
}

type stopper interface {
	Stop(ctx context.Context) error
}

type startStopper interface {
	starter
	stopper
}

// Application encapsulates a cmux server application.
type Application struct {
	output io.Writer
	args   []string
	logger kitlog.Logger

	starters []starter
	stoppers []stopper

	waitStopCh      chan os.Signal
	bootstrappedCh  chan struct{}
	shutdownTimeout time.Duration
}

// New returns a runnable application given an output and a command line arguments array.
func New(output io.Writer, args []string) *Application {
	return &Application{
		output:          output,
		args:            args,
		waitStopCh:      make(chan os.Signal, 1),
		bootstrappedCh:  make(chan struct{}),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Run runs cmux application until either a stop signal is received or an error occurs.
func (a *Application) Run() error {
	if len(a.args) == 0 {
		return errors.New("empty command-line arguments")
	}
	var configFile, password string
	var showVersion, showUsage bool

	fs := flag.NewFlagSet("cmuxd", flag.ContinueOnError)
	fs.SetOutput(a.output)

	fs.BoolVar(&showUsage, "help", false, "Show this message")
	fs.BoolVar(&showUsage, "h", false, "Show this message")
	fs.BoolVar(&showVersion, "version", false, "Print version information.")
	fs.BoolVar(&showVersion, "v", false, "Print version information.")
	fs.StringVar(&configFile, "config", defaultConfigFile, "Configuration file path.")
	fs.StringVar(&configFile, "c", defaultConfigFile, "Configuration file path.")
	fs.StringVar(&password, "hash-password", "", "Print password bcrypt hash.")
	fs.Usage = func() {
		for i := range logoStr {
			_, _ = fmt.Fprintf(a.output, "%s\n", logoStr[i])
		}
		_, _ = fmt.Fprintf(a.output, "%s\n", usageStr)
	}
	if err := fs.Parse(a.args[1:]); err != nil {
		return err
	}
	// print usage
	if showUsage {
		fs.Usage()
		return nil
	}
	// print version
	if showVersion {
		_, _ = fmt.Fprintf(a.output, "cmuxd version: %v\n", version.ApplicationVersion)
		return nil
	}
	// print password hash
	if len(password) > 0 {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.output, "%s\n", hash)
		return nil
	}
	// if present, override config file path with env var
	if envCfgFile := os.Getenv(envConfigFile); len(envCfgFile) > 0 {
		configFile = envCfgFile
	}
	// load configuration
	cfg, err := config.FromFile(configFile)
	if err != nil {
		return err
	}
	// create PID file
	if err := createPIDFile(cfg.PIDFile); err != nil {
		return err
	}
	// init logger
	a.logger = log.NewLogger(a.output, cfg.Logger.Level, cfg.Logger.Format)

	a.printLogo()

	level.Info(a.logger).Log("msg", "cmuxd is starting...",
		"version", version.ApplicationVersion.String(),
		"go_ver", runtime.Version(),
		"go_os", runtime.GOOS,
		"go_arch", runtime.GOARCH,
	)
	if err := a.initComponents(cfg); err != nil {
		return err
	}
	if err := a.bootstrap(); err != nil {
		return err
	}
	close(a.bootstrappedCh)

	// ...wait for stop signal to shutdown
	sig := a.waitForStopSignal()
	level.Info(a.logger).Log("msg", "received stop signal... shutting down...", "signal", sig.String())

	if err := a.shutdown(); err != nil {
		return err
	}
	if len(cfg.PIDFile) > 0 {
		_ = os.Remove(cfg.PIDFile)
	}
	return nil
}

func (a *Application) registerStartStopper(ss startStopper) {
	a.starters = append(a.starters, ss)
	a.stoppers = append([]stopper{ss}, a.stoppers...)
}

func (a *Application) bootstrap() error {
	// spin up all service subsystems
	ctx, cancel := context.WithTimeout(context.Background(), defaultBootstrapTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		// invoke all registered starters...
		for _, s := range a.starters {
			if err := s.Start(ctx); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Application) shutdown() error {
	// wait until shutdown has been completed
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		// invoke all registered stoppers...
		for _, st := range a.stoppers {
			if err := st.Stop(ctx); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Application) waitForStopSignal() os.Signal {
	signal.Notify(a.waitStopCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	return <-a.waitStopCh
}

func (a *Application) printLogo() {
	for i := range logoStr {
		level.Info(a.logger).Log("msg", logoStr[i])
	}
}

func createPIDFile(pidFile string) error {
	if len(pidFile) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(pidFile), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(pidFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	currentPid := os.Getpid()
	if _, err := file.WriteString(strconv.FormatInt(int64(currentPid), 10)); err != nil {
		return err
	}
	return nil
}
