// Copyright 2015 Google Inc. All Rights Reserved.
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

// Command mount serves a WFS disk image over FUSE at a mount point,
// daemonizing into the background unless run with --foreground.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/eyunku/basic-file-system/internal/config"
	"github.com/eyunku/basic-file-system/internal/logger"
	"github.com/eyunku/basic-file-system/internal/wfs"
	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"
)

var (
	fuseOptions []string
	cfgFile     string
)

func main() {
	opts := config.DefaultMountOptions()

	cmd := &cobra.Command{
		Use:   "mount <disk_path> <mount_point>",
		Short: "Mount a WFS disk image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "enable TRACE-level FUSE debug logging")
	cmd.Flags().BoolVar(&opts.Foreground, "foreground", false, "run in the foreground instead of daemonizing")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "path to a log file; defaults to stderr")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "text", "log line format: text or json")
	cmd.Flags().BoolVar(&opts.UpdateAtimeOnRead, "update-atime-on-read", false, "bump atime on every read")
	cmd.Flags().StringArrayVarP(&fuseOptions, "option", "o", nil, "FUSE mount option, key[=value], may be repeated")
	cmd.Flags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string, flagOpts *config.MountOptions) error {
	diskPath, mountPoint := args[0], args[1]

	if err := config.BindFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("mount: binding flags: %w", err)
	}
	opts, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("mount: loading config: %w", err)
	}
	// Flags set directly on this invocation win over a stale config file.
	if flagOpts.Debug {
		opts.Debug = true
	}
	if flagOpts.Foreground {
		opts.Foreground = true
	}

	opts.FuseOptions = map[string]string{}
	for _, o := range fuseOptions {
		config.ParseOptions(opts.FuseOptions, o)
	}

	setUpLogging(opts)

	if !opts.Foreground {
		return daemonizeAndWait(mountPoint)
	}

	mfs, disk, err := mountFileSystem(diskPath, mountPoint, opts)
	// Whether or not this process is actually a daemonize.Run child, telling
	// daemonize the outcome is how a parent mount invocation unblocks; it is
	// a no-op when there is no such parent waiting.
	if signalErr := daemonize.SignalOutcome(err); signalErr != nil {
		logger.Errorf("mount: signaling outcome to parent: %v", signalErr)
	}
	if err != nil {
		logger.Errorf("mount: %v", err)
		return err
	}

	registerSIGINTHandler(mountPoint)
	go reportLogUtilization(disk, 10*time.Minute)

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("mount: waiting for unmount: %w", err)
	}
	return nil
}

func setUpLogging(opts config.MountOptions) {
	severity := logger.SeverityInfo
	if opts.Debug {
		severity = logger.SeverityTrace
	}
	logger.SetLogFormat(opts.LogFormat)
	if opts.LogFile != "" {
		if err := logger.InitLogFile(opts.LogFile, logger.DefaultRotateConfig(), opts.LogFormat, severity); err != nil {
			fmt.Fprintf(os.Stderr, "mount: opening log file %q: %v\n", opts.LogFile, err)
			return
		}
	}
	logger.SetSeverity(severity)
}

// mountFileSystem opens the disk, builds the filesystem server, and mounts
// it at mountPoint. Called only once this process has committed to running
// in the foreground, whether because --foreground was passed or because
// this is the daemonized child.
func mountFileSystem(diskPath, mountPoint string, opts config.MountOptions) (*fuse.MountedFileSystem, *wfs.Disk, error) {
	disk, err := wfs.OpenMapped(diskPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening disk: %w", err)
	}

	server, err := wfs.NewServer(&wfs.ServerConfig{
		Disk:              disk,
		Clock:             timeutil.RealClock(),
		UpdateAtimeOnRead: opts.UpdateAtimeOnRead,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building server: %w", err)
	}

	mountCfg := &fuse.MountConfig{
		FSName:     "wfs",
		Subtype:    "wfs",
		VolumeName: "wfs",
		Options:    opts.FuseOptions,
	}
	if opts.Debug {
		mountCfg.DebugLogger = log.New(os.Stderr, "wfs_debug: ", log.LstdFlags)
	}
	mountCfg.ErrorLogger = log.New(os.Stderr, "wfs: ", log.LstdFlags)

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("fuse.Mount: %w", err)
	}

	logger.Infof("mount: serving %s at %s", diskPath, mountPoint)
	return mfs, disk, nil
}

// reportLogUtilization periodically logs how much of the backing disk's
// log has been consumed, so an operator watching the logs knows when fsck
// is due. Never exits on its own; it dies with the process.
func reportLogUtilization(disk *wfs.Disk, period time.Duration) {
	for range time.Tick(period) {
		sb, err := wfs.ReadSuperblock(disk.Bytes())
		if err != nil {
			logger.Errorf("mount: reading superblock for utilization report: %v", err)
			continue
		}
		logger.Infof("mount: log occupies %d of %d bytes (%.1f%%)",
			sb.Head, disk.Len(), 100*float64(sb.Head)/float64(disk.Len()))
	}
}

// daemonizeAndWait re-executes this binary with --foreground, waits for it
// to report whether the mount succeeded, and returns.
func daemonizeAndWait(mountPoint string) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("mount: finding own executable: %w", err)
	}

	daemonArgs := append([]string{"--foreground"}, os.Args[1:]...)
	env := []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}

	if err := daemonize.Run(path, daemonArgs, env, os.Stdout); err != nil {
		return fmt.Errorf("mount: daemonize.Run: %w", err)
	}
	fmt.Printf("mount: %s mounted successfully\n", mountPoint)
	return nil
}

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Info("mount: received SIGINT, attempting to unmount...")
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("mount: failed to unmount in response to SIGINT: %v", err)
				continue
			}
			logger.Info("mount: successfully unmounted in response to SIGINT")
			return
		}
	}()
}
