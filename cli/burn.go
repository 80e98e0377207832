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

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ifd3f/caligula/burn/tracker"
	"github.com/ifd3f/caligula/compress"
	"github.com/ifd3f/caligula/device"
	"github.com/ifd3f/caligula/hashsrc"
	"github.com/ifd3f/caligula/herding"
	"github.com/ifd3f/caligula/internal/log"
	"github.com/ifd3f/caligula/ipc"
	"github.com/ifd3f/caligula/system"
	"github.com/ifd3f/caligula/utils"
)

// Exit codes, per spec.md §6: 0 on success, non-zero on any error, and a
// dedicated code for a hash-verification mismatch so scripts can tell a
// bad download from a burn failure.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitHashMismatch = 2
	ExitUserDeclined = 3
)

func burnCommand(opts *runOptions) *cli.Command {
	return &cli.Command{
		Name:      "burn",
		Usage:     "write an image to a file, disk, or partition",
		ArgsUsage: "<input>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "destination path"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "skip the confirmation prompt"},
			&cli.BoolFlag{Name: "show-all-disks", Usage: "include non-removable disks in candidate listings"},
			&cli.StringFlag{Name: "compression", Aliases: []string{"z"}, Value: "auto", Usage: "one of: auto, none, bz2, gz, xz, zst"},
			&cli.StringFlag{Name: "hash", Aliases: []string{"s"}, Value: "ask", Usage: "ask, skip, none, <alg>-<digest>, or a bare digest"},
			&cli.StringFlag{Name: "sudo", Value: "ask", Usage: "one of: ask, always, never"},
			&cli.BoolFlag{Name: "non-interactive", Usage: "never prompt; fail instead of asking"},
			&cli.IntFlag{Name: "block-size", Usage: "override the destination's sector size"},
		},
		Action: func(ctx *cli.Context) error {
			return runBurn(ctx, opts)
		},
	}
}

func runBurn(ctx *cli.Context, opts *runOptions) error {
	input := ctx.Args().First()
	if input == "" {
		return cli.Exit("missing required <input> argument", ExitError)
	}
	if _, err := os.Stat(input); err != nil {
		return cli.Exit(errors.Wrapf(err, "cannot read input %s", input), ExitError)
	}

	out := ctx.String("out")
	force := ctx.Bool("force")
	interactive := !ctx.Bool("non-interactive")
	logger := log.WithRole(opts.logger, log.RoleMain)

	hashSpec, err := resolveHashSpec(ctx.String("hash"), input, ctx.IsSet("hash"))
	if err != nil {
		return cli.Exit(err, ExitError)
	}
	if hashSpec.Policy == hashsrc.PolicyVerify {
		if err := verifySourceHash(input, hashSpec, logger); err != nil {
			return cli.Exit(err, ExitHashMismatch)
		}
	} else if hashSpec.Policy == hashsrc.PolicyAsk && interactive && !force {
		if !confirm(fmt.Sprintf("No hash given for %s. Continue without verifying it?", input)) {
			return cli.Exit("aborted", ExitUserDeclined)
		}
	}

	target := device.ClassifyTarget(out)
	if target != ipc.TargetFile {
		warnIfNotRemovable(out, ctx.Bool("show-all-disks"), logger)
	}
	if target != ipc.TargetFile && !force {
		if !interactive {
			return cli.Exit("refusing to write to a disk/partition without --force in non-interactive mode", ExitError)
		}
		if !confirm(fmt.Sprintf("This will overwrite %s. Continue?", out)) {
			return cli.Exit("aborted", ExitUserDeclined)
		}
	}

	cfg := ipc.WriterConfig{
		SourcePath:        input,
		DestPath:          out,
		Verify:            true,
		Compression:       ipc.CompressionTag(ctx.String("compression")),
		Target:            target,
		BlockSizeOverride: ctx.Int("block-size"),
	}

	return drive(cfg, ctx.String("sudo"), interactive, logger)
}

// resolveHashSpec applies spec.md §6: an explicit --hash flag wins; absent
// that, a sibling checksum file is consulted; absent that, the policy is
// Ask (the caller decides what to do when prompting isn't possible).
func resolveHashSpec(flag, input string, flagSet bool) (hashsrc.HashSpec, error) {
	if flagSet {
		return hashsrc.ParseHashArg(flag)
	}
	if spec, ok, err := hashsrc.FindHashFile(input); err != nil {
		return hashsrc.HashSpec{}, err
	} else if ok {
		return spec, nil
	}
	return hashsrc.HashSpec{Policy: hashsrc.PolicyAsk}, nil
}

func verifySourceHash(path string, spec hashsrc.HashSpec, logger *logrus.Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	logger.Infof("verifying source hash (%s)", spec.Algorithm)
	if err := hashsrc.VerifyHash(spec, f); err != nil {
		return errors.Wrap(err, "source hash does not match")
	}
	return nil
}

// warnIfNotRemovable logs a warning when out isn't among the removable
// disks ListCandidates finds — the best-effort guard spec.md's
// --show-all-disks flag exists to override, since wiping a non-removable
// disk is almost always a mistake.
func warnIfNotRemovable(out string, showAll bool, logger *logrus.Entry) {
	if showAll {
		return
	}
	candidates, err := device.ListCandidates()
	if err != nil {
		return
	}
	for _, d := range device.FilterRemovable(candidates, false) {
		if d.Path == out {
			return
		}
	}
	logger.Warnf("%s is not in the removable disk list; pass --show-all-disks to silence this", out)
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// drive spawns the writer, runs the event loop, and renders progress
// until a terminal message arrives.
func drive(cfg ipc.WriterConfig, sudoPolicy string, interactive bool, logger *logrus.Entry) error {
	stateDir, err := herding.NewStateDir(os.TempDir(), os.Getpid(), time.Now().UnixMilli())
	if err != nil {
		return cli.Exit(err, ExitError)
	}
	defer stateDir.Remove()

	rendezvous, err := herding.Listen(stateDir.SocketPath())
	if err != nil {
		return cli.Exit(err, ExitError)
	}
	defer rendezvous.Close()

	exe, err := os.Executable()
	if err != nil {
		return cli.Exit(err, ExitError)
	}

	spawner := herding.NewSpawner(exe, system.OsCalls{}, stateDir, rendezvous, logger)
	defer spawner.Close()

	handle, err := spawner.StartWriter(cfg, false)
	if kind, ok := asPermissionDenied(err); ok {
		logger.Warnf("permission denied opening %s: %v", cfg.DestPath, kind)
		if sudoPolicy == "never" {
			return cli.Exit("destination requires elevated privileges and --sudo=never was given", ExitError)
		}
		if sudoPolicy == "ask" && interactive && !confirm("Retry with sudo?") {
			return cli.Exit("aborted", ExitUserDeclined)
		}
		handle, err = spawner.StartWriter(cfg, true)
	}
	if err != nil {
		return cli.Exit(err, ExitError)
	}
	defer handle.Close()

	format := compress.DetectFromFileName(cfg.SourcePath)
	if cfg.Compression != ipc.CompressionAuto && cfg.Compression != "" {
		format = compress.Format(cfg.Compression)
	}
	if runErr := runEventLoop(handle, spawner, format != compress.Identity, logger); runErr != nil {
		fmt.Fprintf(os.Stderr, "logs: %s\n", stateDir.Path)
		return cli.Exit(runErr, ExitError)
	}
	return nil
}

// headlessProgress is the non-TTY fallback for runEventLoop: a dot every
// few percent, the teacher's ProgressWriter cadence (utils/progress.go,
// since dropped) adapted to be driven by tracker.State.ApproximateRatio()
// directly instead of a raw byte count, since a compressed source's final
// decompressed size is frequently unknown up front.
type headlessProgress struct {
	out      io.Writer
	nextStep float64
}

const headlessProgressStep = 1.0 / 32

func newHeadlessProgress(out io.Writer) *headlessProgress {
	return &headlessProgress{out: out, nextStep: headlessProgressStep}
}

func (h *headlessProgress) update(ratio float64) {
	for h.nextStep <= 1 && ratio >= h.nextStep {
		fmt.Fprint(h.out, ".")
		h.nextStep += headlessProgressStep
	}
}

// asPermissionDenied unwraps an ipc.ErrorKind carrying PermissionDenied,
// which StartWriter surfaces as the error when the writer's first frame
// is an Error frame (spec.md §7's "observed during the first-message
// handshake" case).
func asPermissionDenied(err error) (ipc.ErrorKind, bool) {
	var kind ipc.ErrorKind
	if errors.As(err, &kind) && kind.Tag == ipc.ErrPermissionDenied {
		return kind, true
	}
	return ipc.ErrorKind{}, false
}

// drainDaemonEvents logs ChildExited/FatalError frames from the escalated
// daemon's control connection (spec.md:96) for as long as the connection
// stays open; it returns once the connection closes, which happens when
// spawner.Close() tears down the daemon at the end of drive().
func drainDaemonEvents(dec *ipc.Decoder, logger *logrus.Entry) {
	for {
		evt, err := dec.DecodeDaemonEvent()
		if err != nil {
			return
		}
		switch evt.Tag {
		case ipc.DaemonEvtChildExited:
			logger.WithField("child_id", evt.ChildID).Infof("escalated daemon: child exited with code %d", evt.Code)
		case ipc.DaemonEvtFatalError:
			logger.Warnf("escalated daemon: fatal error: %s", evt.Error)
		}
	}
}

// runEventLoop reads StatusMessage frames until a terminal one arrives,
// folding them through tracker.State and rendering progress, per spec.md
// §4.4/§5's single-threaded cooperative model. When the writer was
// escalated, it also drains the daemon's ChildExited/FatalError events in
// the background — spawner.DaemonEvents() is otherwise never read, and
// the daemon's own control connection would block on a full socket
// buffer with nobody on the other end.
func runEventLoop(handle *herding.WriterHandle, spawner *herding.Spawner, compressed bool, logger *logrus.Entry) error {
	first, err := handle.Next()
	if err != nil {
		return err
	}
	if first.Tag != ipc.TagInitSuccess {
		return errors.Errorf("unexpected first message from writer: %s", first)
	}

	if dec, ok := spawner.DaemonEvents(); ok {
		go drainDaemonEvents(dec, logger)
	}

	state := tracker.New(time.Now(), first.InputFileBytes, compressed)
	bar := utils.NewProgressBar(os.Stderr, first.InputFileBytes, utils.BYTES, logger)
	var fallback *headlessProgress
	var lastRatioBytes uint64
	if bar == nil {
		fallback = newHeadlessProgress(os.Stderr)
	}

	for state.Phase != tracker.Finished {
		msg, err := handle.Next()
		if err != nil {
			state = tracker.OnStreamClosed(state)
			break
		}
		state = tracker.OnStatus(state, time.Now(), &msg)

		ratio := state.ApproximateRatio()
		if bar != nil {
			current := uint64(ratio * float64(first.InputFileBytes))
			if current > lastRatioBytes {
				bar.Tick(current - lastRatioBytes)
				lastRatioBytes = current
			}
		} else {
			fallback.update(ratio)
		}
	}

	fmt.Fprintln(os.Stderr)
	if state.Err != nil {
		fmt.Fprintf(os.Stderr, "failed: %s\n", state.Err.Error())
		return *state.Err
	}
	fmt.Fprintln(os.Stderr, "done")
	return nil
}
