package crowd

import (
	"context"
	"log/slog"

	"github.com/netvariant/moqui-workflow/pkg/models"
)

type Verdict int

const (
	Pending Verdict = iota
	Success
	Failure
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "pending"
	}
}

// Port maps a decided verdict to the outgoing port. Pending has no port.
func (v Verdict) Port() (models.Port, bool) {
	switch v {
	case Success:
		return models.PortSuccess, true
	case Failure:
		return models.PortFailure, true
	}

	return "", false
}

// Quorum decides approval gates from task outcomes.
type Quorum struct {
	resolver *Resolver
	logger   *slog.Logger
}

func NewQuorum(resolver *Resolver, logger *slog.Logger) *Quorum {
	return &Quorum{resolver: resolver, logger: logger.With("module", "quorum")}
}

// Evaluate counts the APPROVED and REJECTED tasks held by each gate's crowd. Rejections
// are checked first: a gate at its rejection threshold fails the whole evaluation. A gate
// at its approval threshold ends an OR join with Success; a gate below it ends an AND
// join with Pending. Otherwise the last gate's verdict stands. Thresholds below one count
// as one. tasks must be the tasks of the visit being decided.
func (q *Quorum) Evaluate(ctx context.Context, join models.JoinOperator, gates []models.Crowd, inst *models.Instance, tasks []*models.Task) (Verdict, error) {
	verdict := Pending

	for i, gate := range gates {
		users, err := q.resolver.Resolve(ctx, gate, inst)
		if err != nil {
			return Pending, err
		}

		approvals, rejections := tally(users, tasks)

		q.logger.DebugContext(ctx, "Gate tallied",
			"gate", i,
			"crowd_type", gate.Type,
			"approvals", approvals,
			"rejections", rejections,
			"min_approvals", threshold(gate.MinApprovals),
			"min_rejections", threshold(gate.MinRejections))

		switch {
		case rejections >= threshold(gate.MinRejections):
			return Failure, nil
		case approvals >= threshold(gate.MinApprovals):
			verdict = Success
			if join == models.JoinOr {
				return verdict, nil
			}
		default:
			verdict = Pending
			if join == models.JoinAnd {
				return verdict, nil
			}
		}
	}

	return verdict, nil
}

// Completion is the rule for MANUAL and VARIABLE tasks: Success once none is still open.
func Completion(tasks []*models.Task) Verdict {
	for _, t := range tasks {
		if t.Status.Open() {
			return Pending
		}
	}

	return Success
}

func tally(users []string, tasks []*models.Task) (approvals, rejections int64) {
	crowd := make(map[string]bool, len(users))
	for _, u := range users {
		crowd[u] = true
	}

	for _, t := range tasks {
		if !crowd[t.AssignedUserID] {
			continue
		}

		switch t.Status {
		case models.TaskStatusApproved:
			approvals++
		case models.TaskStatusRejected:
			rejections++
		}
	}

	return approvals, rejections
}

func threshold(n int64) int64 {
	if n < 1 {
		return 1
	}

	return n
}
