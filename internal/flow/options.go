package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// DefaultFlowCode names the onboarding flow.
const DefaultFlowCode = "onboarding_v1"

// #region resubmit-policy

// ResubmitPolicy decides what happens when a question is answered again.
type ResubmitPolicy string

const (
	// ResubmitAppend stores every submission and re-applies its rules.
	ResubmitAppend ResubmitPolicy = "append"
	// ResubmitIgnore stores nothing for an already-answered question.
	ResubmitIgnore ResubmitPolicy = "ignore"
)

// ParseResubmitPolicy validates a policy name. Empty means append.
func ParseResubmitPolicy(s string) (ResubmitPolicy, error) {
	switch ResubmitPolicy(s) {
	case "", ResubmitAppend:
		return ResubmitAppend, nil
	case ResubmitIgnore:
		return ResubmitIgnore, nil
	default:
		return "", fmt.Errorf("unknown resubmit policy %q", s)
	}
}

// #endregion resubmit-policy

// #region options

// Options configures a Controller.
type Options struct {
	FlowCode       string
	ResubmitPolicy ResubmitPolicy
	// SerializeSubjects runs each subject's pipelines one at a time in this process.
	SerializeSubjects bool
	BoostComponent    string
	// BoostPolicy controls boosts on repeated module completion.
	BoostPolicy intervention.BoostPolicy
	Now         func() time.Time
}

// DefaultOptions returns append-policy, boost-once, unserialized options.
func DefaultOptions() Options {
	return Options{
		FlowCode:       DefaultFlowCode,
		ResubmitPolicy: ResubmitAppend,
		BoostComponent: intervention.DefaultBoostComponent,
		BoostPolicy:    intervention.BoostOnce,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FlowCode == "" {
		o.FlowCode = d.FlowCode
	}
	if o.ResubmitPolicy == "" {
		o.ResubmitPolicy = d.ResubmitPolicy
	}
	if o.BoostComponent == "" {
		o.BoostComponent = d.BoostComponent
	}
	if o.BoostPolicy == "" {
		o.BoostPolicy = d.BoostPolicy
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// #endregion options

// #region subject-locks

// subjectLocks is a keyed mutex. Entries are dropped when no caller holds or waits on them.
type subjectLocks struct {
	mu      sync.Mutex
	entries map[subject.Key]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{entries: make(map[subject.Key]*lockEntry)}
}

// lock blocks until s is available and returns its release func.
func (l *subjectLocks) lock(s subject.Key) func() {
	l.mu.Lock()
	e, ok := l.entries[s]
	if !ok {
		e = &lockEntry{}
		l.entries[s] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, s)
		}
		l.mu.Unlock()
	}
}

func (l *subjectLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// #endregion subject-locks
