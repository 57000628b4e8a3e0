package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/paipan/internal/logging"
	"github.com/raysh454/paipan/internal/sender"
)

type JobEventType string

const (
	JobEventStatus JobEventType = "status"
	JobEventOutput JobEventType = "output"
	JobEventResult JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For output lines printed by the sender
	Line string `json:"line,omitempty"`

	// For the final result
	Result *sender.Result `json:"result,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// JobTypeSend is the only job type: one fixture send.
const JobTypeSend = "send"

type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    JobStatus      `json:"status"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Output    []string       `json:"output,omitempty"`
	Result    *sender.Result `json:"result,omitempty"`
	Events    chan JobEvent  `json:"-"`
}

// Runner is what a send job executes. *sender.Sender satisfies it.
type Runner interface {
	Send(ctx context.Context, out io.Writer) (*sender.Result, error)
}

// Orchestrator runs send jobs in the background and tracks their state.
type Orchestrator struct {
	runner Runner
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
}

// NewOrchestrator ties a runner to a job table.
func NewOrchestrator(runner Runner, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		runner:     runner,
		logger:     logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) updateJob(jobID string, fn func(*Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.updateJob(jobID, func(j *Job) {
		j.Status = status
		j.Error = errMsg
	})
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errMsg})
}

// StartSendJob runs one send in the background. The job is bound to the
// orchestrator, not to ctx, and ends through CancelJob or Shutdown.
func (o *Orchestrator) StartSendJob(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.runner == nil {
		return nil, errors.New("no sender configured")
	}
	if o.ctx.Err() != nil {
		return nil, errors.New("orchestrator is shut down")
	}

	jobID := uuid.New().String()
	job := &Job{
		ID:        jobID,
		Type:      JobTypeSend,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}

	jobCtx, cancel := context.WithCancel(o.ctx)
	o.jobsMu.Lock()
	o.jobs[jobID] = job
	o.jobCancels[jobID] = cancel
	o.jobsMu.Unlock()

	snapshot := o.GetJob(jobID)

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.jobsMu.Lock()
			cancel := o.jobCancels[jobID]
			delete(o.jobCancels, jobID)
			j := o.jobs[jobID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			o.jobsMu.Unlock()
			if cancel != nil {
				cancel()
			}

			// Close events channel so websocket loop can terminate cleanly
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		o.setStatus(jobID, JobRunning, "")

		out := &lineWriter{onLine: func(line string) {
			o.updateJob(jobID, func(j *Job) { j.Output = append(j.Output, line) })
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventOutput, Line: line})
		}}

		res, err := o.runner.Send(jobCtx, out)
		out.Flush()
		if err != nil {
			select {
			case <-jobCtx.Done():
				o.setStatus(jobID, JobCanceled, jobCtx.Err().Error())
			default:
				o.logger.Warn("send job failed", logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
				o.setStatus(jobID, JobFailed, err.Error())
			}
			return
		}

		o.updateJob(jobID, func(j *Job) {
			j.Status = JobDone
			j.Result = res
		})
		o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Status: JobDone, Result: res})
		o.logger.Info("send job done",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "status", Value: res.StatusCode})
	}()

	return snapshot, nil
}

// CancelJob cancels a running job. It reports whether the job was running.
func (o *Orchestrator) CancelJob(jobID string) bool {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetJob returns a copy of the job's current state, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	return j.snapshot()
}

// ListJobs returns copies of all jobs, oldest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, j.snapshot())
	}
	o.jobsMu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

// Shutdown cancels every job and waits for them to finish or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) snapshot() *Job {
	cp := *j
	cp.Output = append([]string(nil), j.Output...)
	return &cp
}

// lineWriter splits written bytes into lines and hands each to onLine.
type lineWriter struct {
	buf    bytes.Buffer
	onLine func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.onLine(line[:len(line)-1])
	}
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.onLine(w.buf.String())
		w.buf.Reset()
	}
}
