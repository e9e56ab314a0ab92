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

package format

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fleetops/fleetctl/pkg/fleet"
)

// Mode selects how a TextWriter lays results out.
type Mode int

const (
	// ModeAuto picks Oneline for a result whose stdout fits on one line (a
	// single trailing newline allowed) and whose stderr is empty, and
	// Multiline otherwise.
	ModeAuto Mode = iota
	ModeOneline
	ModeMultiline
)

// TextWriter renders a stream of results as they arrive. The instance
// column starts 24 characters wide; an id longer than that widens the
// column for its own row and every later row, so earlier rows and the
// header keep the narrower width.
type TextWriter struct {
	w        *bufio.Writer
	mode     Mode
	header   bool
	idWidth  int
	started  bool
}

// NewTextWriter returns a TextWriter. If header is true, a column header
// line is written before the first result.
func NewTextWriter(w io.Writer, mode Mode, header bool) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w), mode: mode, header: header}
}

// Write renders one result. Flush must be called once the stream ends.
func (t *TextWriter) Write(r fleet.Result) error {
	if !t.started {
		t.started = true
		t.idWidth = 24
		if t.header {
			fmt.Fprintf(t.w, "%-*s  %-8s  %s\n", t.idWidth, "INSTANCE", "STATUS", "OUTPUT")
		}
	}

	id := r.Target.InstanceID
	if r.Target.IsGlobalZone {
		id = r.Target.ComputeID
	}
	if len(id) > t.idWidth {
		t.idWidth = len(id)
	}

	status := r.Status.String()
	if r.Status == fleet.StatusNonzero {
		status = fmt.Sprintf("exit %d", r.ExitStatus)
	}

	mode := t.mode
	if mode == ModeAuto {
		mode = ModeOneline
		if strings.Contains(strings.TrimSuffix(string(r.Stdout), "\n"), "\n") || len(r.Stderr) > 0 {
			mode = ModeMultiline
		}
	}

	switch mode {
	case ModeOneline:
		out := firstLine(r.Stdout)
		if out == "" {
			out = firstLine(r.Stderr)
		}
		if r.Error != nil {
			out = r.Error.Error()
		}
		_, err := fmt.Fprintf(t.w, "%-*s  %-8s  %s\n", t.idWidth, id, status, out)
		return err
	default:
		if _, err := fmt.Fprintf(t.w, "==> %s (%s) <==\n", id, status); err != nil {
			return err
		}
		if r.Error != nil {
			_, err := fmt.Fprintf(t.w, "%s\n", r.Error)
			return err
		}
		if len(r.Stdout) > 0 {
			if _, err := t.w.Write(r.Stdout); err != nil {
				return err
			}
		}
		if len(r.Stderr) > 0 {
			if _, err := t.w.Write(r.Stderr); err != nil {
				return err
			}
		}
		return nil
	}
}

// Flush writes any buffered output.
func (t *TextWriter) Flush() error {
	return t.w.Flush()
}

func firstLine(b []byte) string {
	s := string(b)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
