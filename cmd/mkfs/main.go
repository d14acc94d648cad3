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

// Command mkfs lays down a fresh WFS superblock and root directory on a
// backing file, creating it if necessary.
package main

import (
	"fmt"
	"os"

	"github.com/eyunku/basic-file-system/internal/wfs"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"
)

var diskSize int64

func main() {
	cmd := &cobra.Command{
		Use:   "mkfs <disk_path>",
		Short: "Initialize a new WFS disk image",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	cmd.Flags().Int64Var(&diskSize, "disk-size", wfs.DefaultDiskSize, "size in bytes of the disk image to create")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	diskPath := args[0]

	if diskSize < wfs.SuperblockSize+wfs.InodeRecordSize {
		return fmt.Errorf("mkfs: --disk-size %d is too small to hold an empty filesystem", diskSize)
	}

	disk := wfs.NewMemDisk(int(diskSize))
	if err := wfs.Format(disk.Bytes(), timeutil.RealClock(), uint32(os.Getuid()), uint32(os.Getgid())); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}

	if err := os.WriteFile(diskPath, disk.Bytes(), 0o644); err != nil {
		return fmt.Errorf("mkfs: writing %q: %w", diskPath, err)
	}

	fmt.Printf("mkfs: wrote %d-byte filesystem to %s\n", diskSize, diskPath)
	return nil
}
