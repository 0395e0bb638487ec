package genflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Submitter writes a placeholder record, creates the remote job, swaps the placeholder
// for the final record and hands the final id to the poller.
type Submitter struct {
	reg        Registry
	jobs       JobCreator
	poller     *Poller
	retryDelay time.Duration
	sleep      SleepFunc
	log        Logger
	now        func() time.Time
}

// NewSubmitter creates a submitter. poller may be nil, in which case final records are
// written but not polled.
func NewSubmitter(reg Registry, jobs JobCreator, poller *Poller, opts ...Option) *Submitter {
	o := newOptions(opts)
	return &Submitter{
		reg:        reg,
		jobs:       jobs,
		poller:     poller,
		retryDelay: o.retryDelay,
		sleep:      o.sleep,
		log:        o.logger,
		now:        time.Now,
	}
}

// Placeholder inserts a pending record under a fresh temporary id.
// index disambiguates placeholders created in one pass.
func (s *Submitter) Placeholder(ctx context.Context, p CreateParams, index int) (*Task, error) {
	t := newTask(NewTempID(index), p, s.now())
	if err := s.reg.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Submit validates p, writes a placeholder and submits it. Invalid params are rejected
// before anything is written or sent.
func (s *Submitter) Submit(ctx context.Context, p CreateParams) (*Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tmp, err := s.Placeholder(ctx, p, 0)
	if err != nil {
		return nil, err
	}
	return s.SubmitPlaceholder(ctx, tmp.ID, p)
}

// SubmitPlaceholder creates the remote job for an existing placeholder.
//
// A response without a usable id is retried once after the retry delay; if the id is
// still missing the placeholder stays pending and ErrUnresolvedID is returned. Any other
// create error marks the placeholder failed. On success the placeholder is replaced by a
// pending record under the final id and polling starts.
func (s *Submitter) SubmitPlaceholder(ctx context.Context, tempID string, p CreateParams) (*Task, error) {
	if err := p.Validate(); err != nil {
		s.Fail(ctx, tempID, err)
		return nil, err
	}
	id, err := s.jobs.CreateJob(ctx, p)
	if errors.Is(err, ErrExtractionFailed) {
		s.log.Warnf("submit: no job id, retrying once temp=%s delay=%s", tempID, s.retryDelay)
		if serr := s.sleep(ctx, s.retryDelay); serr != nil {
			return nil, serr
		}
		id, err = s.jobs.CreateJob(ctx, p)
		if errors.Is(err, ErrExtractionFailed) {
			s.log.Errorf("submit: job id unresolved, record left pending temp=%s err=%v", tempID, err)
			return nil, fmt.Errorf("%w: temp=%s: %v", ErrUnresolvedID, tempID, err)
		}
	}
	if err != nil {
		s.log.Errorf("submit: create failed temp=%s err=%v", tempID, err)
		s.Fail(ctx, tempID, err)
		return nil, err
	}

	tmp, err := s.reg.Get(ctx, tempID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			s.log.Warnf("submit: placeholder removed before reconciliation temp=%s id=%s", tempID, id)
		}
		return nil, err
	}
	final := newTask(id, p, s.now())
	final.CreatedAt = tmp.CreatedAt
	ok, err := s.reg.Replace(ctx, tempID, final)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Warnf("submit: placeholder removed before reconciliation temp=%s id=%s", tempID, id)
		return nil, ErrTaskNotFound
	}
	s.log.Infof("submit: reconciled temp=%s id=%s model=%s", tempID, id, p.Model)
	if s.poller != nil {
		s.poller.Start(id)
	}
	return final, nil
}

// Fail marks id failed with err's message. A missing record is ignored.
func (s *Submitter) Fail(ctx context.Context, id string, err error) {
	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	if _, werr := s.reg.Upsert(ctx, id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = msg
	}); werr != nil {
		s.log.Errorf("submit: mark failed id=%s err=%v", id, werr)
	}
}

// Delete stops polling id and removes its record. Remote jobs are not cancelled.
func (s *Submitter) Delete(ctx context.Context, id string) (bool, error) {
	if s.poller != nil {
		s.poller.Stop(id)
	}
	return s.reg.Delete(ctx, id)
}

// Clear stops every loop and removes every task record. It returns the number removed.
func (s *Submitter) Clear(ctx context.Context) (int, error) {
	if s.poller != nil {
		s.poller.StopAll()
	}
	tasks, err := s.reg.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		ok, err := s.reg.Delete(ctx, t.ID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
