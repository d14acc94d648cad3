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

// Command fsck compacts a WFS disk image in place, dropping every
// superseded or tombstoned log record.
package main

import (
	"fmt"
	"os"

	"github.com/eyunku/basic-file-system/internal/wfs"
	"github.com/spf13/cobra"
)

var dryRun bool

func main() {
	cmd := &cobra.Command{
		Use:   "fsck <disk_path>",
		Short: "Compact a WFS disk image",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what compaction would do without writing the disk")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	diskPath := args[0]

	disk, err := wfs.OpenMapped(diskPath)
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}
	defer disk.Close()

	working := disk.Bytes()
	if dryRun {
		working = append([]byte(nil), disk.Bytes()...)
	}

	scratch := make([]byte, disk.Len())
	stats, err := wfs.Compact(working, scratch)
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	fmt.Printf("fsck: scanned %d records, kept %d live inodes, dropped %d tombstoned/superseded\n",
		stats.ScannedEntries, stats.LiveInodes, stats.ScannedEntries-stats.LiveInodes)
	fmt.Printf("fsck: head %d -> %d (%s)\n", stats.OldHead, stats.NewHead, modeLabel())

	return nil
}

func modeLabel() string {
	if dryRun {
		return "dry run, disk unchanged"
	}
	return "written"
}
