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

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString   = `^time="[0-9/:. ]{26}" severity=TRACE message="traceExample"`
	textDebugString   = `^time="[0-9/:. ]{26}" severity=DEBUG message="debugExample"`
	textInfoString    = `^time="[0-9/:. ]{26}" severity=INFO message="infoExample"`
	textWarningString = `^time="[0-9/:. ]{26}" severity=WARNING message="warningExample"`
	textErrorString   = `^time="[0-9/:. ]{26}" severity=ERROR message="errorExample"`

	jsonTraceString   = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"TRACE","message":"traceExample"}`
	jsonDebugString   = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"DEBUG","message":"debugExample"}`
	jsonInfoString    = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"INFO","message":"infoExample"}`
	jsonWarningString = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"WARNING","message":"warningExample"}`
	jsonErrorString   = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"ERROR","message":"errorExample"}`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToBuffer(buf *bytes.Buffer, format, level string) {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(level, programLevel)
	defaultLogger = slog.New(createJsonOrTextHandler(buf, programLevel, format, ""))
}

func testLoggingFunctions() []func() {
	return []func(){
		func() { Tracef("traceExample") },
		func() { Debugf("debugExample") },
		func() { Infof("infoExample") },
		func() { Warnf("warningExample") },
		func() { Errorf("errorExample") },
	}
}

func outputFor(format, level string) []string {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, format, level)

	var output []string
	for _, f := range testLoggingFunctions() {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func assertOutput(t *testing.T, expected, actual []string) {
	for i := range actual {
		if expected[i] == "" {
			assert.Equal(t, expected[i], actual[i])
			continue
		}
		assert.Regexp(t, regexp.MustCompile(expected[i]), actual[i])
	}
}

func (t *LoggerTest) TestTextLogLevelOff() {
	assertOutput(t.T(), []string{"", "", "", "", ""}, outputFor("text", SeverityOff))
}

func (t *LoggerTest) TestTextLogLevelError() {
	assertOutput(t.T(), []string{"", "", "", "", textErrorString}, outputFor("text", SeverityError))
}

func (t *LoggerTest) TestTextLogLevelWarning() {
	assertOutput(t.T(), []string{"", "", "", textWarningString, textErrorString}, outputFor("text", SeverityWarning))
}

func (t *LoggerTest) TestTextLogLevelInfo() {
	assertOutput(t.T(), []string{"", "", textInfoString, textWarningString, textErrorString}, outputFor("text", SeverityInfo))
}

func (t *LoggerTest) TestTextLogLevelDebug() {
	assertOutput(t.T(), []string{"", textDebugString, textInfoString, textWarningString, textErrorString}, outputFor("text", SeverityDebug))
}

func (t *LoggerTest) TestTextLogLevelTrace() {
	assertOutput(t.T(), []string{textTraceString, textDebugString, textInfoString, textWarningString, textErrorString}, outputFor("text", SeverityTrace))
}

func (t *LoggerTest) TestJSONLogLevelError() {
	assertOutput(t.T(), []string{"", "", "", "", jsonErrorString}, outputFor("json", SeverityError))
}

func (t *LoggerTest) TestJSONLogLevelTrace() {
	assertOutput(t.T(), []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString}, outputFor("json", SeverityTrace))
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		input    string
		expected slog.Level
	}{
		{SeverityTrace, LevelTrace},
		{SeverityDebug, LevelDebug},
		{SeverityInfo, LevelInfo},
		{SeverityWarning, LevelWarn},
		{SeverityError, LevelError},
		{SeverityOff, LevelOff},
	}

	for _, test := range testData {
		programLevel := new(slog.LevelVar)
		setLoggingLevel(test.input, programLevel)
		assert.Equal(t.T(), test.expected, programLevel.Level())
	}
}

func (t *LoggerTest) TestSetLogFormat() {
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.level = SeverityInfo
	defaultLoggerFactory.mu.Unlock()

	SetLogFormat("json")
	assert.Equal(t.T(), "json", defaultLoggerFactory.format)

	SetLogFormat("text")
	assert.Equal(t.T(), "text", defaultLoggerFactory.format)
}
