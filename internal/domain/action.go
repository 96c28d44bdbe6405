package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind - what a voter asked for.
type ActionKind int

const (
	ActionSelect ActionKind = iota + 1
	ActionDecline
	ActionFlexible
	ActionClear
)

var actionNames = map[ActionKind]string{
	ActionSelect:   "select",
	ActionDecline:  "decline",
	ActionFlexible: "flexible",
	ActionClear:    "clear",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// Action - a vote action. Option is meaningful only for ActionSelect.
type Action struct {
	Kind   ActionKind
	Option int
}

func Select(option int) Action { return Action{Kind: ActionSelect, Option: option} }
func Decline() Action          { return Action{Kind: ActionDecline} }
func Flexible() Action         { return Action{Kind: ActionFlexible} }
func Clear() Action            { return Action{Kind: ActionClear} }

func (a Action) String() string {
	if a.Kind == ActionSelect {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Option)
	}
	return a.Kind.String()
}

// ParseActionKind maps a wire name to an ActionKind.
func ParseActionKind(name string) (ActionKind, error) {
	for kind, n := range actionNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, name)
}

// ParseVoteArg parses the argument of a text vote command:
// an option number, "out", "flex" or "clear".
func ParseVoteArg(arg string) (Action, error) {
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(arg) {
	case "out", "decline":
		return Decline(), nil
	case "flex", "flexible", "any":
		return Flexible(), nil
	case "clear", "reset":
		return Clear(), nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %q is not an option number", ErrInvalidAction, arg)
	}
	return Select(n), nil
}
