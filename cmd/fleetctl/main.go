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

// Command fleetctl is a thin front end over two of the engines in pkg/:
// the file-driven layout generator ("genconfig") and the fleet dispatcher
// ("fleet"). The planner, executor, coordination reconciler, and alarm
// reconciler have no subcommand here. Argument parsing and output
// rendering live here deliberately thin; the engines underneath carry the
// behavior this tool is tested against.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/fleetops/fleetctl/internal/config"
	"github.com/fleetops/fleetctl/internal/logging"
)

// Exit codes: 0 success, 1 operational error or a nonzero fleet result,
// 2 usage error.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Errorf("load config: %v", err)
		return exitError
	}

	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "administer the service's compute fleet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenConfigCmd(), newFleetCmd(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		switch e := err.(type) {
		case usageError:
			fmt.Fprintln(os.Stderr, e.Error())
			return exitUsage
		case exitCodeError:
			return e.code
		default:
			fmt.Fprintln(os.Stderr, err)
			return exitError
		}
	}
	return exitOK
}

// usageError marks an error as a malformed invocation rather than an
// operational failure, so run can map it to exit code 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }
