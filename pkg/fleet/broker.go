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

package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetops/fleetctl/pkg/codecutil"
)

// Broker dispatches one operation to one target and waits for its reply.
// Dispatch returns a non-nil error only for transport-level failures
// (could not publish, connection lost) or when ctx's deadline elapses
// without a reply; a target executing the operation and returning a
// nonzero status is reported through Result, not through err.
type Broker interface {
	Dispatch(ctx context.Context, target Target, op Op) (Result, error)
}

// BrokerParams configures the AMQP connection used to reach fleet agents.
type BrokerParams struct {
	Host           string
	Port           int
	Login          string
	Password       string
	ConnectTimeout time.Duration
}

func (p BrokerParams) connectTimeout() time.Duration {
	if p.ConnectTimeout > 0 {
		return p.ConnectTimeout
	}
	return 10 * time.Second
}

func (p BrokerParams) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", p.Login, p.Password, p.Host, p.Port)
}

// AMQPBroker dispatches operations over a RabbitMQ exchange: one message is
// published per target, addressed to that target's per-instance command
// queue, and the reply is awaited on a shared, exclusive reply-to queue
// keyed by correlation id. This is the same request/reply shape the fleet
// agents on every compute node already speak.
type AMQPBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	replyTo string
	replies <-chan amqp.Delivery
}

// DialBroker connects to the AMQP broker at params and declares the
// exclusive reply queue used to correlate responses.
func DialBroker(params BrokerParams) (*AMQPBroker, error) {
	conn, err := amqp.DialConfig(params.url(), amqp.Config{Dial: amqp.DefaultDial(params.connectTimeout())})
	if err != nil {
		return nil, fmt.Errorf("fleet: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("fleet: open channel: %w", err)
	}
	replyQueue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("fleet: declare reply queue: %w", err)
	}
	replies, err := ch.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("fleet: consume reply queue: %w", err)
	}
	return &AMQPBroker{conn: conn, channel: ch, replyTo: replyQueue.Name, replies: replies}, nil
}

// Close releases the broker's channel and connection.
func (b *AMQPBroker) Close() error {
	b.channel.Close()
	return b.conn.Close()
}

type wireRequest struct {
	Kind       string `json:"kind"`
	Command    string `json:"command,omitempty"`
	RemotePath string `json:"remotePath,omitempty"`
	LocalDir   string `json:"localDir,omitempty"`
	RemoteDir  string `json:"remoteDir,omitempty"`
	Payload    []byte `json:"payload,omitempty"` // zstd-compressed, OpPut only
}

type wireReply struct {
	ExitStatus int    `json:"exitStatus"`
	Stdout     []byte `json:"stdout"`
	Stderr     []byte `json:"stderr"`
	Payload    []byte `json:"payload,omitempty"` // zstd-compressed, OpGet only
}

// Dispatch publishes op to target's command queue and blocks for a reply
// or ctx's deadline, whichever comes first.
func (b *AMQPBroker) Dispatch(ctx context.Context, target Target, op Op) (Result, error) {
	req, err := encodeRequest(op)
	if err != nil {
		return Result{}, fmt.Errorf("fleet: encode request: %w", err)
	}
	corrID := uuid.NewString()
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("fleet: marshal request: %w", err)
	}

	queue := commandQueueName(target)
	err = b.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corrID,
		ReplyTo:       b.replyTo,
		Body:          body,
	})
	if err != nil {
		return Result{}, fmt.Errorf("fleet: publish to %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return Result{Target: target, Status: StatusTimeout, Error: ctx.Err()}, nil
		case d, ok := <-b.replies:
			if !ok {
				return Result{}, fmt.Errorf("fleet: reply channel closed")
			}
			if d.CorrelationId != corrID {
				continue // a reply for an earlier, already-timed-out dispatch
			}
			var reply wireReply
			if err := json.Unmarshal(d.Body, &reply); err != nil {
				return Result{}, fmt.Errorf("fleet: decode reply: %w", err)
			}
			return decodeResult(target, op, reply)
		}
	}
}

func commandQueueName(target Target) string {
	if target.IsGlobalZone {
		return "fleet.cmd." + target.ComputeID
	}
	return "fleet.cmd." + target.InstanceID
}

func encodeRequest(op Op) (wireRequest, error) {
	switch op.Kind {
	case OpCommand:
		return wireRequest{Kind: "command", Command: op.Command}, nil
	case OpGet:
		return wireRequest{Kind: "get", RemotePath: op.RemotePath}, nil
	case OpPut:
		raw, err := os.ReadFile(op.LocalPath)
		if err != nil {
			return wireRequest{}, fmt.Errorf("read %s: %w", op.LocalPath, err)
		}
		payload, err := codecutil.CompressBytes(raw)
		if err != nil {
			return wireRequest{}, fmt.Errorf("compress %s: %w", op.LocalPath, err)
		}
		return wireRequest{Kind: "put", RemoteDir: op.RemoteDir, Payload: payload}, nil
	default:
		return wireRequest{}, fmt.Errorf("fleet: unknown op kind %d", op.Kind)
	}
}

// decodeResult turns a wire reply into a Result, writing OpGet payloads to
// disk under their target-qualified filename along the way.
func decodeResult(target Target, op Op, reply wireReply) (Result, error) {
	status := StatusOK
	if reply.ExitStatus != 0 {
		status = StatusNonzero
	}
	res := Result{
		Target:     target,
		Status:     status,
		ExitStatus: reply.ExitStatus,
		Stdout:     reply.Stdout,
		Stderr:     reply.Stderr,
	}
	if op.Kind == OpGet && status == StatusOK {
		raw, err := codecutil.DecompressBytes(reply.Payload)
		if err != nil {
			return Result{}, fmt.Errorf("decompress payload from %s: %w", targetName(target), err)
		}
		dest := filepath.Join(op.LocalDir, targetName(target)+"."+filepath.Base(op.RemotePath))
		if err := os.WriteFile(dest, raw, 0o644); err != nil {
			return Result{}, fmt.Errorf("write %s: %w", dest, err)
		}
	}
	return res, nil
}

func targetName(target Target) string {
	if target.IsGlobalZone {
		return target.ComputeID
	}
	return target.InstanceID
}
