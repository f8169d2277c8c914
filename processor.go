package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrSessionDone = errors.New("all URLs have been classified")
	ErrNoProposal  = errors.New("no decision is ready")
)

// State is the session's position in the labeling cycle
type State int

const (
	// StateIdle has a pending record but no decision started
	StateIdle State = iota
	// StateDeciding has a decision task in flight
	StateDeciding
	// StatePresenting has a decision waiting for the operator
	StatePresenting
	// StateTerminal has nothing left to label
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeciding:
		return "deciding"
	case StatePresenting:
		return "presenting"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Proposal is an engine decision for a pending record
type Proposal struct {
	Record   URLRecord
	Decision Decision
	// Position is the 1-based index of the record in the pending list
	Position int
}

// Task is a decision computed in the background. It cannot be cancelled;
// once started it runs to completion.
type Task struct {
	done     chan struct{}
	proposal Proposal
}

// Done is closed when the proposal is available
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the proposal is available
func (t *Task) Wait() Proposal {
	<-t.done
	return t.proposal
}

func (t *Task) ready() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Session walks a fixed list of pending records, one decision at a time, and
// appends every resolved record to the result log. Records are never revisited.
type Session struct {
	engine  Decider
	results *ResultLog
	logger  Logger

	mu      sync.Mutex
	pending []URLRecord
	next    int
	written map[string]struct{}
	task    *Task
}

// NewSession creates a session over already-filtered pending records
func NewSession(engine Decider, results *ResultLog, pending []URLRecord, logger Logger) *Session {
	return &Session{
		engine:  engine,
		results: results,
		logger:  logger,
		pending: pending,
		written: make(map[string]struct{}),
	}
}

// SessionOptions locate the session inputs
type SessionOptions struct {
	DatasetPath string
	ResultsPath string
	Filter      Filter
}

// LoadSession rebuilds the processed set from the result log, reads and
// filters the dataset, and prepares the log for appending. A missing result
// log is an empty one; a missing dataset is fatal.
func LoadSession(opts SessionOptions, engine Decider, logger Logger) (*Session, error) {
	processed, err := LoadProcessed(opts.ResultsPath)
	if err != nil {
		return nil, fmt.Errorf("loading processed URLs: %w", err)
	}

	dataset, err := ReadDataset(opts.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	pending := PendingRecords(dataset.Records, processed, opts.Filter)

	results, err := OpenResultLog(opts.ResultsPath, dataset.Columns)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}

	if dropped := results.Dropped(); len(dropped) > 0 {
		logger.Warn("result log header lacks dataset columns, their values will not be written",
			String("results", opts.ResultsPath),
			String("columns", strings.Join(dropped, ",")),
		)
	}

	logger.Info("session loaded",
		Int("dataset_rows", len(dataset.Records)),
		Int("already_processed", len(processed)),
		Int("pending", len(pending)),
	)

	return NewSession(engine, results, pending, logger), nil
}

// Total returns the number of pending records the session started with
func (s *Session) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Processed returns how many pending records have been resolved or skipped
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// State reports where the session is in the labeling cycle
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipWrittenLocked()
	switch {
	case s.next >= len(s.pending):
		return StateTerminal
	case s.task == nil:
		return StateIdle
	case s.task.ready():
		return StatePresenting
	default:
		return StateDeciding
	}
}

// Propose starts the decision for the next record and returns its task. If a
// decision is already in flight or waiting, that task is returned instead.
// It returns nil once the session is terminal.
func (s *Session) Propose(ctx context.Context) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipWrittenLocked()
	if s.next >= len(s.pending) {
		return nil
	}
	if s.task != nil {
		return s.task
	}

	rec := s.pending[s.next]
	position := s.next + 1
	task := &Task{done: make(chan struct{})}
	s.task = task

	go func() {
		decision := s.engine.Decide(ctx, rec)
		task.proposal = Proposal{Record: rec, Decision: decision, Position: position}
		close(task.done)
	}()

	return task
}

// Confirm records the engine decision as the human decision
func (s *Session) Confirm() (ResultRecord, error) {
	return s.resolve(false)
}

// Flip records the opposite of the engine decision as the human decision
func (s *Session) Flip() (ResultRecord, error) {
	return s.resolve(true)
}

func (s *Session) resolve(flip bool) (ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipWrittenLocked()
	if s.next >= len(s.pending) {
		return ResultRecord{}, ErrSessionDone
	}
	if s.task == nil || !s.task.ready() {
		return ResultRecord{}, ErrNoProposal
	}

	p := s.task.proposal
	human := p.Decision.Value
	if flip {
		human = 1 - human
	}
	return s.writeLocked(p, human)
}

// BatchAdvance writes up to n engine decisions without confirmation, with the
// human decision equal to the engine decision. A decision already in flight
// or on screen is used as is. It stops early when the session is terminal,
// and returns the context error once ctx is done.
func (s *Session) BatchAdvance(ctx context.Context, n int) (int, error) {
	count := 0
	for count < n {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("batch advance interrupted", Int("written", count), Err(err))
			return count, err
		}

		task := s.Propose(ctx)
		if task == nil {
			break
		}
		p := task.Wait()

		// a decision finished after cancellation may be a fallback caused by it
		if err := ctx.Err(); err != nil {
			s.discard(task)
			s.logger.Warn("batch advance interrupted", Int("written", count),
				String("discarded_url", p.Record.URL), Err(err))
			return count, err
		}

		s.mu.Lock()
		if s.task != task {
			// resolved by the operator while we waited
			s.mu.Unlock()
			continue
		}
		_, err := s.writeLocked(p, p.Decision.Value)
		s.mu.Unlock()
		if err != nil {
			return count, err
		}
		count++
	}

	s.logger.Info("batch advance", Int("requested", n), Int("written", count))
	return count, nil
}

// discard drops task so the record is decided again on the next Propose
func (s *Session) discard(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == task {
		s.task = nil
	}
}

// writeLocked appends the result and advances. On a write failure the
// proposal stays current so the operator can retry.
func (s *Session) writeLocked(p Proposal, human int) (ResultRecord, error) {
	rec := ResultRecord{
		Record:          p.Record,
		DecisionProcess: p.Decision.Value,
		DecisionHuman:   human,
		ReasonProcess:   p.Decision.Reason,
	}

	if err := s.results.Append(rec); err != nil {
		s.logger.Error("writing result", String("url", p.Record.URL), Err(err))
		return ResultRecord{}, fmt.Errorf("saving result for %s: %w", p.Record.URL, err)
	}

	s.logger.Debug("result saved",
		String("url", p.Record.URL),
		Int("decision_process", rec.DecisionProcess),
		Int("decision_human", rec.DecisionHuman),
		String("source", string(p.Decision.Source)),
	)

	s.written[p.Record.URL] = struct{}{}
	s.next++
	s.task = nil
	return rec, nil
}

// skipWrittenLocked passes over dataset rows repeating a URL written earlier
// in this run
func (s *Session) skipWrittenLocked() {
	if s.task != nil {
		return
	}
	for s.next < len(s.pending) {
		if _, dup := s.written[s.pending[s.next].URL]; !dup {
			return
		}
		s.next++
	}
}
