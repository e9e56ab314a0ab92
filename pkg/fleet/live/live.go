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

// Package live streams a dispatch run's results to a websocket client as
// they complete, for operators who want to watch a fleet command land in
// real time instead of waiting on the final formatted report.
package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/fleetops/fleetctl/pkg/fleet"
	"github.com/fleetops/fleetctl/pkg/websocketutil"
)

// Frame is one line of the live-tail wire format.
type Frame struct {
	Target     fleet.Target `json:"target"`
	Status     string       `json:"status"`
	ExitStatus int          `json:"exitStatus"`
	Error      string       `json:"error,omitempty"`
	Done       bool         `json:"done,omitempty"`
}

// Tail relays every result read off results to conn as a JSON frame, in the
// order results arrive, and writes a final Done frame once results closes.
func Tail(ctx context.Context, conn *websocket.Conn, results <-chan fleet.Result) error {
	rw := websocketutil.NewConnReadWriteCloser(ctx, conn)
	defer rw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			if !ok {
				return writeFrame(rw, Frame{Done: true})
			}
			frame := Frame{Target: r.Target, Status: r.Status.String(), ExitStatus: r.ExitStatus}
			if r.Error != nil {
				frame.Error = r.Error.Error()
			}
			if err := writeFrame(rw, frame); err != nil {
				return err
			}
		}
	}
}

func writeFrame(rw *websocketutil.ConnReadWriter, frame Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("live: marshal frame: %w", err)
	}
	_, err = rw.Write(body)
	return err
}
