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

package exec

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/fleetops/fleetctl/pkg/plan"
)

var (
	provisionColor   = color.New(color.FgGreen)
	reprovisionColor = color.New(color.FgYellow)
	deprovisionColor = color.New(color.FgRed)
)

// renderOp formats a single operation for dry-run and progress output,
// colored by kind: green for provision, yellow for reprovision, red for
// deprovision.
func renderOp(op plan.Operation) string {
	switch op.Kind {
	case plan.Provision:
		line := fmt.Sprintf("provision %s on %s image=%s", op.Service, op.ComputeID, op.ConfigKey.ImageID)
		if op.ConfigKey.Shard != 0 {
			line += fmt.Sprintf(" shard=%d", op.ConfigKey.Shard)
		}
		return provisionColor.Sprint(line)
	case plan.Reprovision:
		line := fmt.Sprintf("reprovision %s instance=%s %s->%s", op.Service, op.InstanceID, op.OldImage, op.NewImage)
		if op.Shard != 0 {
			line += fmt.Sprintf(" shard=%d", op.Shard)
		}
		return reprovisionColor.Sprint(line)
	case plan.Deprovision:
		line := fmt.Sprintf("deprovision %s instance=%s (%s)", op.Service, op.InstanceID, op.Reason)
		return deprovisionColor.Sprint(line)
	default:
		return fmt.Sprintf("unknown operation %+v", op)
	}
}
