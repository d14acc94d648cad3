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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseOptions_BareFlags(t *testing.T) {
	dst := map[string]string{}
	ParseOptions(dst, "ro,allow_other")
	assert.Equal(t, map[string]string{"ro": "", "allow_other": ""}, dst)
}

func TestParseOptions_KeyValue(t *testing.T) {
	dst := map[string]string{}
	ParseOptions(dst, "uid=501,gid=20")
	assert.Equal(t, map[string]string{"uid": "501", "gid": "20"}, dst)
}

func TestParseOptions_Mixed(t *testing.T) {
	dst := map[string]string{}
	ParseOptions(dst, "ro,uid=501")
	assert.Equal(t, map[string]string{"ro": "", "uid": "501"}, dst)
}

func TestParseOptions_EmptyPartsIgnored(t *testing.T) {
	dst := map[string]string{}
	ParseOptions(dst, "ro,,allow_other")
	assert.Equal(t, map[string]string{"ro": "", "allow_other": ""}, dst)
}

func TestParseOptions_AccumulatesAcrossCalls(t *testing.T) {
	dst := map[string]string{}
	ParseOptions(dst, "ro")
	ParseOptions(dst, "uid=501")
	assert.Equal(t, map[string]string{"ro": "", "uid": "501"}, dst)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "wfs.yaml")

	contents, err := yaml.Marshal(map[string]interface{}{
		"debug":                true,
		"foreground":           true,
		"log-file":             "/tmp/wfs.log",
		"log-format":           "json",
		"update-atime-on-read": true,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.True(t, opts.Debug)
	assert.True(t, opts.Foreground)
	assert.Equal(t, "/tmp/wfs.log", opts.LogFile)
	assert.Equal(t, "json", opts.LogFormat)
	assert.True(t, opts.UpdateAtimeOnRead)
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	viper.Reset()
	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "text", opts.LogFormat)
	assert.False(t, opts.Debug)
}
