/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cruisecontrol is a client for the external optimization service
// ("Cruise Control") that computes and executes Kafka partition rebalance
// plans. It speaks the service's REST protocol and classifies failures into
// the taxonomy the state machine needs to decide whether to retry.
package cruisecontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	v1alpha1 "github.com/strimzi-contrib/rebalance-operator/pkg/apis/rebalance/v1alpha1"
)

// TransportError means the request never produced an HTTP response: DNS
// failure, connection refused, TLS handshake failure, context deadline.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cruise control %s: transport: %v", e.Op, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means a response was received but the service rejected the
// request or returned a body the client could not interpret: non-2xx status
// or unparsable JSON. A task reported as COMPLETED_WITH_ERROR is not an
// error here; TaskStatus returns it as an ordinary TaskStatusResult.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("cruise control %s: protocol: status=%d body=%s", e.Op, e.StatusCode, truncate(e.Body, 512))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// ProposalOutcome discriminates the three shapes a /rebalance response can take.
type ProposalOutcome string

const (
	NotEnoughData    ProposalOutcome = "notEnoughData"
	StillCalculating ProposalOutcome = "stillCalculating"
	SummaryPresent   ProposalOutcome = "summaryPresent"
)

// ProposalResult is the outcome of requesting (or polling) an optimization proposal.
type ProposalResult struct {
	UserTaskID string
	Outcome    ProposalOutcome
	Summary    map[string]string
}

// TaskState is the lifecycle state of an in-execution task, as reported by
// the /user_tasks endpoint.
type TaskState string

const (
	TaskActive          TaskState = "ACTIVE"
	TaskInExecution     TaskState = "IN_EXECUTION"
	TaskCompleted       TaskState = "COMPLETED"
	TaskCompletedErrors TaskState = "COMPLETED_WITH_ERROR"
)

// TaskStatusResult is the outcome of polling a running task's status.
type TaskStatusResult struct {
	State   TaskState
	Summary map[string]string
	// TaskID is the service-assigned identifier echoed back on this poll, used
	// to annotate NotReady conditions with a cross-reference an operator can
	// grep for in Cruise Control's own logs.
	TaskID string
}

// OptimizationClient is the interface the state machine depends on, rather
// than a concrete *Client, so tests can substitute a fake.
type OptimizationClient interface {
	// Proposal requests (dryrun=true) or executes (dryrun=false) an
	// optimization plan. userTaskID, when non-nil, re-attaches to a
	// previously started computation instead of starting a new one.
	Proposal(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (ProposalResult, error)
	// TaskStatus polls the status of a previously returned userTaskID.
	TaskStatus(ctx context.Context, userTaskID string) (TaskStatusResult, error)
	// StopExecution cancels whatever rebalance is currently executing.
	StopExecution(ctx context.Context) error
}

// Client is an OptimizationClient backed by a retrying HTTP transport.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	log     logr.Logger
}

// NewClient builds a Client whose individual HTTP calls are retried by the
// underlying retryablehttp transport (transient 5xx and connection errors),
// bounded by requestTimeout per attempt.
func NewClient(baseURL string, requestTimeout time.Duration, log logr.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.HTTPClient.Timeout = requestTimeout
	rc.Logger = leveledLogger{log: log.WithName("cruisecontrol-http")}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: rc, log: log}
}

// leveledLogger adapts logr.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct{ log logr.Logger }

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(nil, msg, keysAndValues...)
}
func (l leveledLogger) Info(msg string, keysAndValues ...interface{})  { l.log.V(1).Info(msg, keysAndValues...) }
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) { l.log.V(2).Info(msg, keysAndValues...) }
func (l leveledLogger) Warn(msg string, keysAndValues ...interface{})  { l.log.Info(msg, keysAndValues...) }

func (c *Client) Proposal(ctx context.Context, spec v1alpha1.KafkaRebalanceSpec, dryrun bool, userTaskID *string) (ProposalResult, error) {
	q := url.Values{}
	q.Set("dryrun", strconv.FormatBool(dryrun))
	if userTaskID != nil && *userTaskID != "" {
		q.Set("user_task_id", *userTaskID)
	}
	if len(spec.Goals) > 0 {
		q.Set("goals", strings.Join(spec.Goals, ","))
	}
	q.Set("skip_hard_goal_check", strconv.FormatBool(spec.SkipHardGoalCheck))
	if spec.ExcludedTopics != "" {
		q.Set("excluded_topics", spec.ExcludedTopics)
	}
	if spec.ConcurrentPartitionMovementsPerBroker > 0 {
		q.Set("concurrent_partition_movements_per_broker", strconv.Itoa(spec.ConcurrentPartitionMovementsPerBroker))
	}
	if spec.ConcurrentIntraBrokerPartitionMovements > 0 {
		q.Set("concurrent_intra_broker_partition_movements", strconv.Itoa(spec.ConcurrentIntraBrokerPartitionMovements))
	}
	if spec.ConcurrentLeaderMovements > 0 {
		q.Set("concurrent_leader_movements", strconv.Itoa(spec.ConcurrentLeaderMovements))
	}
	if spec.ReplicationThrottle > 0 {
		q.Set("replication_throttle", strconv.Itoa(spec.ReplicationThrottle))
	}
	if len(spec.ReplicaMovementStrategies) > 0 {
		q.Set("replica_movement_strategies", strings.Join(spec.ReplicaMovementStrategies, ","))
	}

	var body struct {
		UserTaskID     string            `json:"userTaskId"`
		NotEnoughData  bool              `json:"notEnoughData"`
		InProgress     bool              `json:"inProgress"`
		Summary        map[string]string `json:"summary"`
	}
	if err := c.do(ctx, "Proposal", http.MethodPost, "/kafkacruisecontrol/rebalance", q, &body); err != nil {
		return ProposalResult{}, err
	}

	result := ProposalResult{UserTaskID: body.UserTaskID, Summary: body.Summary}
	switch {
	case body.NotEnoughData:
		result.Outcome = NotEnoughData
	case body.InProgress || len(body.Summary) == 0:
		result.Outcome = StillCalculating
	default:
		result.Outcome = SummaryPresent
	}
	return result, nil
}

func (c *Client) TaskStatus(ctx context.Context, userTaskID string) (TaskStatusResult, error) {
	q := url.Values{}
	q.Set("user_task_ids", userTaskID)
	var body struct {
		State   string            `json:"state"`
		Summary map[string]string `json:"summary"`
		TaskID  string            `json:"taskId"`
	}
	if err := c.do(ctx, "TaskStatus", http.MethodGet, "/kafkacruisecontrol/user_tasks", q, &body); err != nil {
		return TaskStatusResult{}, err
	}
	taskID := body.TaskID
	if taskID == "" {
		taskID = userTaskID
	}
	return TaskStatusResult{State: TaskState(body.State), Summary: body.Summary, TaskID: taskID}, nil
}

func (c *Client) StopExecution(ctx context.Context) error {
	return c.do(ctx, "StopExecution", http.MethodPost, "/kafkacruisecontrol/stop_proposal_execution", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
