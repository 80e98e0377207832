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

package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ifd3f/caligula/burn"
	"github.com/ifd3f/caligula/cli"
	"github.com/ifd3f/caligula/herding"
	"github.com/ifd3f/caligula/internal/log"
	"github.com/ifd3f/caligula/ipc"
)

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	role := log.Role(os.Getenv("__CALIGULA_RUN_MODE"))
	if role == "" {
		role = log.RoleMain
	}

	var err error
	switch role {
	case log.RoleMain:
		err = cli.App(version).Run(os.Args)
	case log.RoleWriter:
		err = runWriter(os.Args)
	case log.RoleEscalatedDaemon:
		err = runEscalatedDaemon(os.Args)
	default:
		err = fmt.Errorf("main: unknown run mode %q", role)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runWriter implements the writer child role: argv[1]=log_file_path,
// argv[2]=socket_path, argv[3]=init_config_json (spec.md §6).
func runWriter(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("writer: expected <log_file> <socket_path> <config_json>")
	}
	logger, logF, err := log.New(log.RoleWriter, args[1], logrus.InfoLevel)
	if err != nil {
		return err
	}
	defer logF.Close()

	var cfg ipc.WriterConfig
	if err := json.Unmarshal([]byte(args[3]), &cfg); err != nil {
		return err
	}

	conn, err := net.Dial("unix", args[2])
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := ipc.NewEncoder(conn)
	emit := func(msg ipc.StatusMessage) error {
		return enc.EncodeStatus(msg)
	}

	engineCfg := burn.Config{
		SourcePath:        cfg.SourcePath,
		DestPath:          cfg.DestPath,
		Target:            cfg.Target,
		Verify:            cfg.Verify,
		Compression:       cfg.Compression,
		BlockSizeOverride: cfg.BlockSizeOverride,
	}
	if err := burn.Run(engineCfg, emit); err != nil {
		logger.WithError(err).Error("writer: emit failed, exiting")
		return err
	}
	return nil
}

// runEscalatedDaemon implements the long-lived elevated daemon role: same
// positional argv contract as the writer, though init_config_json is
// unused here (the daemon receives per-child config over its control
// connection instead).
func runEscalatedDaemon(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("escalated_daemon: expected <log_file> <socket_path> <config_json>")
	}
	logger, logF, err := log.New(log.RoleEscalatedDaemon, args[1], logrus.InfoLevel)
	if err != nil {
		return err
	}
	defer logF.Close()

	entry := log.WithRole(logger, log.RoleEscalatedDaemon)
	return herding.RunEscalatedDaemon(args[2], entry)
}
