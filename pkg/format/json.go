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

// Package format renders fleet dispatch results for the terminal or for
// machine consumption.
package format

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fleetops/fleetctl/pkg/fleet"
)

type jsonRecord struct {
	Hostname   string `json:"hostname"`
	Zonename   string `json:"zonename"`
	Service    string `json:"service"`
	UUID       string `json:"uuid"`
	ExitStatus int    `json:"exit_status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Error      string `json:"error,omitempty"`
}

// WriteJSONLine appends r to w as one newline-delimited JSON record.
func WriteJSONLine(w io.Writer, r fleet.Result) error {
	rec := jsonRecord{
		Hostname:   r.Target.Hostname,
		Zonename:   r.Target.InstanceID,
		Service:    r.Target.ServiceName,
		UUID:       r.Target.InstanceID,
		ExitStatus: r.ExitStatus,
		Stdout:     string(r.Stdout),
		Stderr:     string(r.Stderr),
	}
	if r.Error != nil {
		rec.Error = r.Error.Error()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("format: marshal result: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", body)
	return err
}
