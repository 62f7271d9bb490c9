// Copyright 2025 The oneprompt Authors
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

package main

import (
	"fmt"
	"os"

	"github.com/oneprompt/oneprompt/pkg/logger"
)

const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"

	defaultLogLevel  = "info"
	defaultLogFormat = "simple"
)

// initLoggerFromCLI installs the process logger.
// Priority: CLI flags > env vars > defaults.
func initLoggerFromCLI(cliLevel, cliFile, cliFormat string) (func(), error) {
	logLevel := cliLevel
	if logLevel == "" {
		logLevel = os.Getenv(logLevelEnvVar)
	}
	if logLevel == "" {
		logLevel = defaultLogLevel
	}

	logFile := cliFile
	if logFile == "" {
		logFile = os.Getenv(logFileEnvVar)
	}

	logFormat := cliFormat
	if logFormat == "" {
		logFormat = os.Getenv(logFormatEnvVar)
	}
	if logFormat == "" {
		logFormat = defaultLogFormat
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}
