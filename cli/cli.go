// Copyright 2024 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Package cli implements the interactive parent's command-line surface:
// global log flags and the single "burn" subcommand (spec.md §6).
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ifd3f/caligula/internal/log"
)

// runOptions collects the flags that need to survive from global parsing
// through to a command's Action, modeled on the teacher's runOptionsType.
type runOptions struct {
	logLevel string
	logFile  string
	logger   *logrus.Logger
}

const appDescription = "" +
	"caligula writes a disk image to a file, whole disk, or partition, " +
	"verifying every block it writes before reporting success."

// App builds the top-level *cli.App. version is the build version string
// shown by --version.
func App(version string) *cli.App {
	opts := &runOptions{}

	app := &cli.App{
		Name:        "caligula",
		Usage:       "safely burn a disk image",
		Description: appDescription,
		Version:     version,
		Before:      opts.handleLogFlags,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "info",
				Usage:       "one of: trace, debug, info, warning, error",
				Destination: &opts.logLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "write logs to this file (also echoed to stderr when it is a terminal)",
				Destination: &opts.logFile,
			},
		},
	}
	app.Commands = []*cli.Command{
		burnCommand(opts),
	}
	return app
}

// handleLogFlags mirrors the teacher's runOptionsType.handleLogFlags: it
// resolves the global --log-level/--log-file flags into a logger before
// any command's Action runs.
func (opts *runOptions) handleLogFlags(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}

	logFile := opts.logFile
	if logFile == "" {
		logFile = "/dev/stderr"
	}
	logger, _, err := log.New(log.RoleMain, logFile, level)
	if err != nil {
		return err
	}
	opts.logger = logger
	return nil
}
