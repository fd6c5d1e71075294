// Package recovery decides what the parser does when it meets malformed
// input: fail the whole document, or record the problem and carry on.
package recovery

type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}

type Context interface{ Done() <-chan struct{} }
