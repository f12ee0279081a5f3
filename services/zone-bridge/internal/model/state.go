package model

import (
	"fmt"
	"strings"
)

// ProcessState is the platform hint passed with a background trigger.
type ProcessState int

const (
	StateActive ProcessState = iota
	StateInactive
	StateBackground
)

func (s ProcessState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateBackground:
		return "background"
	default:
		return "unknown"
	}
}

func ParseProcessState(s string) (ProcessState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "foreground":
		return StateActive, nil
	case "inactive":
		return StateInactive, nil
	case "background":
		return StateBackground, nil
	default:
		return StateActive, fmt.Errorf("unknown process state %q", s)
	}
}

type FetchStatus int

const (
	FetchNoData FetchStatus = iota
	FetchNewData
	FetchFailed
)

func (s FetchStatus) String() string {
	switch s {
	case FetchNewData:
		return "new_data"
	case FetchFailed:
		return "failed"
	default:
		return "no_data"
	}
}
