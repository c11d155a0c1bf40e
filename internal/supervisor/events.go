package supervisor

import (
	"sync"
	"time"

	"github.com/hyperionlabs/mergebot/internal/model"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// EventType enumerates the Scrum-Master's typed event kinds.
type EventType string

const (
	EventStateTransition EventType = "STATE_TRANSITION"
	EventTaskReceived EventType = "TASK_RECEIVED"
	EventApprovalRequested EventType = "APPROVAL_REQUESTED"
	EventImplementationStart EventType = "IMPLEMENTATION_STARTED"
	EventReviewCompleted EventType = "REVIEW_COMPLETED"
	EventError EventType = "ERROR"
	EventLearningCaptured EventType = "LEARNING_CAPTURED"
)

// Event is one append-only entry of a ScrumContext's event log. Timestamps
// are monotonic within a single ScrumContext.
type Event struct {
	Type EventType
	At time.Time
	From, To State
	Detail string
}

// State enumerates the Scrum-Master Supervisor's states.
type State string

const (
	StateIdle State = "IDLE"
	StatePlanning State = "PLANNING"
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	StateImplementing State = "IMPLEMENTING"
	StateReviewing State = "REVIEWING"
	StateCompleted State = "COMPLETED"
	StateFailed State = "FAILED"
	StateCancelled State = "CANCELLED"
	StatePaused State = "PAUSED"
)

// ScrumContext is the Supervisor's single-writer working state for one
// task, including its full event log.
type ScrumContext struct {
	mu sync.Mutex

	TaskInput string
	CurrentState State
	Plan *model.DevelopmentPlan
	Risk ports.RiskLevel
	Knowledge ports.KnowledgeCheckResult
	RetryCount int
	ReviewScore float64
	eventsLog []Event

	clock func() time.Time
}

func newScrumContext(taskInput string, clock func() time.Time) *ScrumContext {
	if clock == nil {
		clock = time.Now
	}
	return &ScrumContext{TaskInput: taskInput, CurrentState: StateIdle, clock: clock}
}

// Events returns a snapshot of the task's event log.
func (s *ScrumContext) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.eventsLog))
	copy(out, s.eventsLog)
	return out
}

func (s *ScrumContext) record(evType EventType, from, to State, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsLog = append(s.eventsLog, Event{Type: evType, At: s.clock(), From: from, To: to, Detail: detail})
}

// Listener receives every event the Supervisor publishes.
type Listener func(Event)
