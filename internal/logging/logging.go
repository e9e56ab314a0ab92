// Copyright 2025 AUTHORS
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

// Package logging wraps the standard library logger with leveled
// convenience methods, matching the plain log.Printf style the rest of
// this toolkit's ancestry uses rather than a structured logging library.
package logging

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

func Infof(format string, args ...any) {
	std.Printf("INFO  "+format, args...)
}

func Warnf(format string, args ...any) {
	std.Printf("WARN  "+format, args...)
}

func Errorf(format string, args ...any) {
	std.Printf("ERROR "+format, args...)
}
