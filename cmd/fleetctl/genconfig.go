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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/layout"
)

// newGenConfigCmd builds the "genconfig" command: read a hardware
// description and a requirements file, derive a desired layout per
// availability zone, and write the resulting JSON to stdout or a file.
// Unlike the other engines, this needs no live upstream or broker, so it
// runs end to end from local files alone.
func newGenConfigCmd() *cobra.Command {
	var hardwarePath, requirementsPath, outPath string

	cmd := &cobra.Command{
		Use:   "genconfig --hardware <file> --requirements <file>",
		Short: "derive a desired layout from a hardware description",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hardwarePath == "" || requirementsPath == "" {
				return usageError{"genconfig: --hardware and --requirements are required"}
			}
			hwFile, err := os.Open(hardwarePath)
			if err != nil {
				return fmt.Errorf("genconfig: open %s: %w", hardwarePath, err)
			}
			defer hwFile.Close()
			hw, err := layout.ParseHardwareDescription(hwFile)
			if err != nil {
				return fmt.Errorf("genconfig: parse %s: %w", hardwarePath, err)
			}

			reqBody, err := os.ReadFile(requirementsPath)
			if err != nil {
				return fmt.Errorf("genconfig: read %s: %w", requirementsPath, err)
			}
			var reqs []layout.ServiceRequirement
			if err := json.Unmarshal(reqBody, &reqs); err != nil {
				return fmt.Errorf("genconfig: parse %s: %w", requirementsPath, err)
			}

			cat := catalog.Default()
			layouts, err := layout.Generate(hw, reqs, cat)
			if err != nil {
				return fmt.Errorf("genconfig: %w", err)
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("genconfig: create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(layouts)
		},
	}
	cmd.Flags().StringVar(&hardwarePath, "hardware", "", "path to the YAML hardware description")
	cmd.Flags().StringVar(&requirementsPath, "requirements", "", "path to the JSON service requirements list")
	cmd.Flags().StringVar(&outPath, "out", "", "write the generated layout here instead of stdout")
	return cmd
}
