package scheduler

import (
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
)

// MessageKind tags the variant carried by a Message.
type MessageKind uint8

const (
	KindProgress MessageKind = iota + 1
	KindResult
	KindError
	KindLog
)

func (k MessageKind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindResult:
		return "result"
	case KindError:
		return "error"
	case KindLog:
		return "log"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Message is what a worker sends to the dispatcher. Only the fields of the
// tagged variant are meaningful. Generation identifies the worker
// incarnation so that messages from a torn-down worker are discarded.
type Message[R any] struct {
	Kind       MessageKind
	TaskID     string
	WorkerID   int
	Generation uint64

	Result   R
	Err      error
	Critical bool
	Fraction float64
	Note     string
	Level    slog.Level
	Attrs    []any
}

// Validate checks the variant is well formed.
func (m Message[R]) Validate() error {
	if m.TaskID == "" {
		return apperrors.Dataf("%s message without task id", m.Kind)
	}
	switch m.Kind {
	case KindProgress, KindResult, KindLog:
		return nil
	case KindError:
		if m.Err == nil {
			return apperrors.Dataf("error message for task %s carries no error", m.TaskID)
		}
		return nil
	default:
		return apperrors.Dataf("message for task %s has %s kind", m.TaskID, m.Kind)
	}
}
