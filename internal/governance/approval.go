package governance

import (
	"context"
	"errors"
	"time"

	dErrors "riftgate/pkg/domain-errors"
)

// ErrApprovalTimeout reports that the maximum-oversight quorum did not arrive
// within the configured window. The request is cancelled, never silently
// retried.
var ErrApprovalTimeout = errors.New("approval timeout")

// DefaultApprovalTimeout bounds the multi-party approval wait.
const DefaultApprovalTimeout = 5 * time.Minute

// Approver is one independent approval source. Implementations block until
// the approver answers or ctx is done.
type Approver interface {
	Approve(ctx context.Context, requestID string) (bool, error)
}

// Coordinator collects a quorum of independent approvals under a deadline.
type Coordinator struct {
	approvers []Approver
	quorum    int
	timeout   time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithApprovalTimeout overrides the approval window.
func WithApprovalTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator builds a coordinator requiring quorum approvals out of the
// given approvers.
func NewCoordinator(approvers []Approver, quorum int, opts ...CoordinatorOption) (*Coordinator, error) {
	if quorum <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "approval quorum must be positive")
	}
	if len(approvers) < quorum {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"quorum %d exceeds available approvers %d", quorum, len(approvers))
	}
	c := &Coordinator{approvers: approvers, quorum: quorum, timeout: DefaultApprovalTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Await blocks until the quorum is reached, every approver has answered, or
// the window expires. A missed window is ErrApprovalTimeout; an answered-but-
// unreached quorum is a ComplianceFailure at RIFT_7.
func (c *Coordinator) Await(ctx context.Context, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type verdict struct {
		approved bool
		err      error
	}
	verdicts := make(chan verdict, len(c.approvers))
	for _, approver := range c.approvers {
		go func(a Approver) {
			ok, err := a.Approve(ctx, requestID)
			verdicts <- verdict{approved: ok, err: err}
		}(approver)
	}

	approved, answered := 0, 0
	for answered < len(c.approvers) {
		select {
		case <-ctx.Done():
			// A caller-initiated cancellation is not a missed window; only
			// an expired deadline maps to the approval timeout.
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return ErrApprovalTimeout
		case v := <-verdicts:
			answered++
			// An errored approver counts as answered-not-approved; the
			// quorum requirement is what protects the decision.
			if v.err == nil && v.approved {
				approved++
			}
			if approved >= c.quorum {
				return nil
			}
		}
	}
	return &ComplianceFailure{
		Level:  Rift7,
		Reason: "maximum-oversight approval quorum not reached",
	}
}
