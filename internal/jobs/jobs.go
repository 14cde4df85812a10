// Package jobs runs slow operations asynchronously and tracks their
// lifecycle in memory. Callers get a job id immediately and poll or stream
// the job's state while a worker goroutine drives it to a terminal status.
package jobs

import (
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job kinds accepted by the registry.
const (
	KindBacktest         = "backtest"
	KindAnalysis         = "analysis"
	KindDownloadData     = "download_data"
	KindRefine           = "refine"
	KindScenarioAnalysis = "scenario_analysis"
)

// Job is one tracked async operation. All state access goes through the
// job's own mutex so workers and readers never race.
type Job struct {
	mu sync.Mutex

	id        string
	kind      string
	status    Status
	createdTS int64
	updatedTS int64
	logs      []string
	result    map[string]interface{}
	errMsg    string

	subscribers map[int]chan string
	nextSub     int
}

// JobView is an immutable snapshot of a job for API responses.
type JobView struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Status    Status                 `json:"status"`
	CreatedTS int64                  `json:"created_ts"`
	UpdatedTS int64                  `json:"updated_ts"`
	Logs      []string               `json:"logs"`
	Result    map[string]interface{} `json:"result"`
	Error     string                 `json:"error,omitempty"`
}

func newJob(id, kind string) *Job {
	now := time.Now().Unix()
	return &Job{
		id:          id,
		kind:        kind,
		status:      StatusQueued,
		createdTS:   now,
		updatedTS:   now,
		logs:        []string{},
		subscribers: make(map[int]chan string),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	return j.id
}

// Kind returns the job kind.
func (j *Job) Kind() string {
	return j.kind
}

// AppendLog records one progress line, dropping a trailing newline. Empty
// lines are ignored. Subscribers receive the line best-effort; a slow
// subscriber loses lines rather than blocking the worker.
func (j *Job) AppendLog(line string) {
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, line)
	j.updatedTS = time.Now().Unix()
	for _, ch := range j.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// Snapshot returns a copy of the job state safe to serialize.
func (j *Job) Snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

// snapshotLocked must be called with j.mu held.
func (j *Job) snapshotLocked() JobView {
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)

	return JobView{
		ID:        j.id,
		Kind:      j.kind,
		Status:    j.status,
		CreatedTS: j.createdTS,
		UpdatedTS: j.updatedTS,
		Logs:      logs,
		Result:    j.result,
		Error:     j.errMsg,
	}
}

// Subscribe registers a log stream with the given buffer and returns the
// job state as of registration: the view carries the backlog, the channel
// carries every line appended after it, with no line lost or duplicated
// between the two. The channel closes when the job reaches a terminal
// status. The returned cancel func detaches the subscriber early.
func (j *Job) Subscribe(buffer int) (JobView, <-chan string, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan string, buffer)

	j.mu.Lock()
	defer j.mu.Unlock()

	view := j.snapshotLocked()
	if j.status.Terminal() {
		close(ch)
		return view, ch, func() {}
	}

	id := j.nextSub
	j.nextSub++
	j.subscribers[id] = ch

	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if sub, ok := j.subscribers[id]; ok {
			delete(j.subscribers, id)
			close(sub)
		}
	}
	return view, ch, cancel
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (j *Job) markRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusRunning
	j.updatedTS = time.Now().Unix()
}

func (j *Job) succeed(result map[string]interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusSucceeded
	j.result = result
	j.updatedTS = time.Now().Unix()
	j.closeSubscribers()
}

func (j *Job) fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusFailed
	j.errMsg = msg
	j.updatedTS = time.Now().Unix()
	j.closeSubscribers()
}

// closeSubscribers must be called with j.mu held.
func (j *Job) closeSubscribers() {
	for id, ch := range j.subscribers {
		delete(j.subscribers, id)
		close(ch)
	}
}
