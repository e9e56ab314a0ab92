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
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/fleetops/fleetctl/internal/config"
	"github.com/fleetops/fleetctl/internal/logging"
	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/fleet"
	"github.com/fleetops/fleetctl/pkg/fleet/live"
	"github.com/fleetops/fleetctl/pkg/format"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// newFleetCmd builds the "fleet" command: resolve a scope against a
// previously captured inventory snapshot and run a shell command against
// every target, streaming results as they complete.
func newFleetCmd(cfg config.Config) *cobra.Command {
	var (
		snapshotPath string
		instanceIDs  []string
		services     []string
		computes     []string
		allLocal     bool
		allGlobal    bool
		timeout      time.Duration
		concurrency  int
		immediate    bool
		listenAddr   string
	)

	cmd := &cobra.Command{
		Use:   "fleet <command>",
		Short: "run a shell command across a scope of fleet instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(snapshotPath)
			if err != nil {
				return err
			}
			cat := defaultCatalog()

			scope := fleet.Scope{
				InstanceIDs:    instanceIDs,
				Services:       services,
				Computes:       computes,
				AllLocal:       allLocal,
				AllGlobalZones: allGlobal,
			}
			targets, err := fleet.ResolveScope(snap, cat, scope)
			if err != nil {
				return fmt.Errorf("fleet: %w", err)
			}

			broker, err := fleet.DialBroker(fleet.BrokerParams{
				Host: cfg.BrokerHost, Port: cfg.BrokerPort,
				Login: cfg.BrokerLogin, Password: cfg.BrokerPassword,
			})
			if err != nil {
				return fmt.Errorf("fleet: %w", err)
			}
			defer broker.Close()

			d := &fleet.Dispatcher{Broker: broker, Concurrency: concurrency, Timeout: timeout}
			if d.Concurrency == 0 {
				d.Concurrency = cfg.FleetConcurrency
			}

			var liveCh chan fleet.Result
			if listenAddr != "" {
				liveCh = make(chan fleet.Result, len(targets))
				srv := startLiveServer(listenAddr, liveCh)
				defer srv.Close()
			}

			results := d.Run(cmd.Context(), targets, fleet.Op{Kind: fleet.OpCommand, Command: args[0]}, immediate)
			var all []fleet.Result
			tw := format.NewTextWriter(os.Stdout, format.ModeAuto, true)
			for r := range results {
				all = append(all, r)
				if err := tw.Write(r); err != nil {
					return fmt.Errorf("fleet: write result: %w", err)
				}
				if liveCh != nil {
					select {
					case liveCh <- r:
					default:
						// a slow or absent live-tail viewer never blocks the
						// primary result stream
					}
				}
			}
			if liveCh != nil {
				close(liveCh)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if fleet.ExitCode(all) != 0 {
				return exitCodeError{exitError}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "path to a captured inventory snapshot (JSON)")
	cmd.Flags().StringSliceVar(&instanceIDs, "instance", nil, "target specific instance ids")
	cmd.Flags().StringSliceVar(&services, "service", nil, "target every local instance of these services")
	cmd.Flags().StringSliceVar(&computes, "compute", nil, "target every instance on these compute nodes")
	cmd.Flags().BoolVar(&allLocal, "all", false, "target every local instance")
	cmd.Flags().BoolVar(&allGlobal, "all-global-zones", false, "target every compute node's global zone")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-target deadline (default: fleet.DefaultTimeout)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max targets in flight (default: config fleetConcurrency)")
	cmd.Flags().BoolVar(&immediate, "immediate", true, "stream results as they complete instead of buffering to the end")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "serve a websocket tail of this run's results at ws://<addr>/tail")
	return cmd
}

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// startLiveServer exposes results over a single websocket endpoint so an
// operator can watch a long-running fleet command land in real time,
// the same upgrade-then-stream idiom the teacher uses for its own event
// feed. It serves best effort: failures here are logged, never fatal to
// the dispatch run itself.
func startLiveServer(addr string, results <-chan fleet.Result) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/tail", func(w http.ResponseWriter, r *http.Request) {
		conn, err := liveUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Errorf("fleet: live tail upgrade: %v", err)
			return
		}
		defer conn.Close()
		if err := live.Tail(r.Context(), conn, results); err != nil {
			logging.Errorf("fleet: live tail: %v", err)
		}
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("fleet: live server: %v", err)
		}
	}()
	return srv
}

// exitCodeError carries a specific process exit code through cobra's error
// path without printing an extra message (fleet results are reported by
// the text writer already).
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return "" }

func loadSnapshot(path string) (*inventory.Snapshot, error) {
	if path == "" {
		return nil, usageError{"fleet: --snapshot is required"}
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fleet: read snapshot %s: %w", path, err)
	}
	var snap inventory.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("fleet: parse snapshot %s: %w", path, err)
	}
	return &snap, nil
}

func defaultCatalog() *catalog.Catalog {
	return catalog.Default()
}
