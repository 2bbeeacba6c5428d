package circuit

import (
	"context"
	"fmt"
)

// Severity of a Log action.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Kind tags an Action variant.
type Kind string

const (
	KindLog       Kind = "log"
	KindAlert     Kind = "alert"
	KindPause     Kind = "pause"
	KindShutdown  Kind = "shutdown"
	KindRebalance Kind = "rebalance"
	KindCustom    Kind = "custom"
)

// Action is a closed set of protective steps run when a threshold fires. The
// manager switches on the concrete type; only the types in this file exist.
type Action interface {
	Kind() Kind
	String() string
	isAction()
}

// Log writes a message to the manager's logger.
type Log struct {
	Message  string
	Severity Severity
}

// Alert sends a message to a notification channel through the Notifier.
type Alert struct {
	Channel string
	Message string
}

// PauseTrading stops new entries; open positions are still managed.
type PauseTrading struct{}

// Shutdown flattens the open position and halts the engine.
type Shutdown struct{}

// Rebalance flattens the open position so the next entry is sized from the
// post-drawdown capital.
type Rebalance struct{}

// Handler is the body of a Custom action.
type Handler func(ctx context.Context, f Firing) error

// Custom runs a caller supplied handler.
type Custom struct {
	Name    string
	Handler Handler
}

func (Log) Kind() Kind          { return KindLog }
func (Alert) Kind() Kind        { return KindAlert }
func (PauseTrading) Kind() Kind { return KindPause }
func (Shutdown) Kind() Kind     { return KindShutdown }
func (Rebalance) Kind() Kind    { return KindRebalance }
func (Custom) Kind() Kind       { return KindCustom }

func (a Log) String() string        { return fmt.Sprintf("log(%s)", a.severity()) }
func (a Alert) String() string      { return fmt.Sprintf("alert(%s)", a.Channel) }
func (PauseTrading) String() string { return "pause" }
func (Shutdown) String() string     { return "shutdown" }
func (Rebalance) String() string    { return "rebalance" }
func (a Custom) String() string     { return fmt.Sprintf("custom(%s)", a.Name) }

func (Log) isAction()          {}
func (Alert) isAction()        {}
func (PauseTrading) isAction() {}
func (Shutdown) isAction()     {}
func (Rebalance) isAction()    {}
func (Custom) isAction()       {}

func (a Log) severity() Severity {
	if a.Severity == "" {
		return SeverityWarn
	}
	return a.Severity
}

// ActionError is an ActionFailure: one action of a firing failed. It never
// stops the remaining actions or the run.
type ActionError struct {
	Level  float64
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("threshold %.2f%%: action %s: %v", e.Level, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Controls are the trading hooks the Pause, Shutdown and Rebalance actions drive.
type Controls interface {
	Pause(reason string)
	Shutdown(ctx context.Context, reason string) error
	Rebalance(ctx context.Context, reason string) error
}

// Notifier delivers Alert actions. Implementations should return quickly;
// slow I/O belongs in a background dispatch.
type Notifier interface {
	Notify(ctx context.Context, channel, message string) error
}

// FiringSink receives every firing, including suppressed ones.
type FiringSink interface {
	OnFiring(ctx context.Context, f Firing)
}
