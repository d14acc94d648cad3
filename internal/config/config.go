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

// Package config holds the mount binary's configuration surface: flags,
// an optional YAML config file, and the FUSE "-o key=value" option list,
// bound together the way GoogleCloudPlatform-gcsfuse's cmd/root.go binds
// its cfg.Config through viper.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MountOptions is everything the mount binary needs once flags, config
// file, and "-o" options have all been merged.
type MountOptions struct {
	Debug             bool              `mapstructure:"debug"`
	Foreground        bool              `mapstructure:"foreground"`
	LogFile           string            `mapstructure:"log-file"`
	LogFormat         string            `mapstructure:"log-format"`
	UpdateAtimeOnRead bool              `mapstructure:"update-atime-on-read"`
	FuseOptions       map[string]string `mapstructure:"-"`
}

func DefaultMountOptions() MountOptions {
	return MountOptions{
		LogFormat:   "text",
		FuseOptions: map[string]string{},
	}
}

// BindFlags wires the given flag set into viper so Load can
// unmarshal the merged result of flags, environment, and config file.
func BindFlags(flags *pflag.FlagSet) error {
	return viper.BindPFlags(flags)
}

// Load reads configFile (if non-empty) as YAML, merges it under whatever
// BindFlags already registered, and unmarshals the result into opts.
func Load(configFile string) (MountOptions, error) {
	opts := DefaultMountOptions()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return opts, err
		}
	}

	if err := viper.Unmarshal(&opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// ParseOptions parses one "-o" argument into dst, splitting on commas the
// way mount(8) accepts "-o ro,allow_other,uid=501": each comma-separated
// part is either a bare flag (value "") or a key=value pair.
func ParseOptions(dst map[string]string, s string) {
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '='); i >= 0 {
			dst[part[:i]] = part[i+1:]
		} else {
			dst[part] = ""
		}
	}
}
