package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Screen identifies a stage in a crew task's workflow. A task's persisted
// screen is either one of the named stages for its family or one of the
// terminal markers.
type Screen string

// Terminal screen markers. No transition is defined out of either.
const (
	ScreenCompleted Screen = "1"
	ScreenFailed    Screen = "-1"
)

// IsTerminal reports whether the screen permits no further transitions.
// The family completed stages count as terminal alongside the markers: a
// task recorded on one is already done even if it never advanced to "1".
func (s Screen) IsTerminal() bool {
	switch s {
	case ScreenCompleted, ScreenFailed, ScreenBSSCompleted, ScreenATMCompleted:
		return true
	default:
		return false
	}
}

// TaskFamily identifies which workflow ordering a task follows.
type TaskFamily string

const (
	FamilyBSS TaskFamily = "BSS"
	FamilyATM TaskFamily = "ATM"
	FamilyCIT TaskFamily = "CIT"
)

// IsValid checks if the family is one of the known workflow families.
func (f TaskFamily) IsValid() bool {
	switch f {
	case FamilyBSS, FamilyATM, FamilyCIT:
		return true
	default:
		return false
	}
}

// BSS stage screens, in workflow order.
const (
	ScreenBSSStart           Screen = "BSS-Start"
	ScreenBSSArrived         Screen = "BSS-Arrived"
	ScreenBSSSaveAmount      Screen = "BSS-SaveAmount"
	ScreenBSSLoaded          Screen = "BSS-Loaded"
	ScreenBSSArrivedDelivery Screen = "BSS-ArrivedDelivery"
	ScreenBSSUnloaded        Screen = "BSS-Unloaded"
	ScreenBSSCompleted       Screen = "BSS-Completed"
)

// ATM stage screens, in workflow order.
const (
	ScreenATMStart           Screen = "ATM-Start"
	ScreenATMArrived         Screen = "ATM-Arrived"
	ScreenATMLoadedAtBank    Screen = "ATM-LoadedAtBank"
	ScreenATMArrivedDelivery Screen = "ATM-ArrivedDelivery"
	ScreenATMLoadedAtAtm     Screen = "ATM-LoadedAtAtm"
	ScreenATMUnloadedAtAtm   Screen = "ATM-UnloadedAtAtm"
	ScreenATMCompleted       Screen = "ATM-Completed"
)

var bssOrdering = []Screen{
	ScreenBSSStart,
	ScreenBSSArrived,
	ScreenBSSSaveAmount,
	ScreenBSSLoaded,
	ScreenBSSArrivedDelivery,
	ScreenBSSUnloaded,
	ScreenBSSCompleted,
}

var atmOrdering = []Screen{
	ScreenATMStart,
	ScreenATMArrived,
	ScreenATMLoadedAtBank,
	ScreenATMArrivedDelivery,
	ScreenATMLoadedAtAtm,
	ScreenATMUnloadedAtAtm,
	ScreenATMCompleted,
}

const citScreenPrefix = "CIT-"

// ErrTerminalLookup indicates a registry query from a terminal screen. The
// state machine guards terminal tasks before consulting the registry, so
// reaching this is an internal invariant failure, not a client error.
type TerminalLookupError struct {
	Screen Screen
}

func (e *TerminalLookupError) Error() string {
	return fmt.Sprintf("no transition defined out of terminal screen %q", e.Screen)
}

// UnknownScreenError indicates a persisted screen value that is not part of
// the family's ordering.
type UnknownScreenError struct {
	Family TaskFamily
	Screen Screen
}

func (e *UnknownScreenError) Error() string {
	return fmt.Sprintf("screen %q is not a known %s stage", e.Screen, e.Family)
}

// NextScreen returns the expected next screen for a task currently on the
// given screen. An empty current screen means the task has not started and
// maps to the family's first stage. Querying from a terminal marker is a
// design error and returns TerminalLookupError.
func NextScreen(family TaskFamily, current Screen) (Screen, error) {
	if current.IsTerminal() {
		return "", &TerminalLookupError{Screen: current}
	}

	switch family {
	case FamilyBSS:
		return nextInOrdering(family, bssOrdering, current)
	case FamilyATM:
		return nextInOrdering(family, atmOrdering, current)
	case FamilyCIT:
		return nextCITScreen(current), nil
	default:
		return "", fmt.Errorf("unknown task family %q", family)
	}
}

func nextInOrdering(family TaskFamily, ordering []Screen, current Screen) (Screen, error) {
	if current == "" {
		return ordering[0], nil
	}

	for i, screen := range ordering {
		if screen != current {
			continue
		}
		if i == len(ordering)-1 {
			// Last named stage advances to the completed marker.
			return ScreenCompleted, nil
		}
		return ordering[i+1], nil
	}

	return "", &UnknownScreenError{Family: family, Screen: current}
}

// nextCITScreen implements the generic numeric increment scheme: "CIT-<n>"
// advances to "CIT-<n+1>". An empty or unrecognized current screen defaults
// to "CIT-2".
func nextCITScreen(current Screen) Screen {
	suffix, ok := strings.CutPrefix(string(current), citScreenPrefix)
	if !ok {
		return citScreenPrefix + "2"
	}

	n, err := strconv.Atoi(suffix)
	if err != nil {
		return citScreenPrefix + "2"
	}

	return Screen(citScreenPrefix + strconv.Itoa(n+1))
}

// UnloadedMarker returns the pre-terminal stage a partially completed task
// is held at. Only the parcel-carrying families have one.
func UnloadedMarker(family TaskFamily) (Screen, bool) {
	switch family {
	case FamilyBSS:
		return ScreenBSSUnloaded, true
	case FamilyATM:
		return ScreenATMUnloadedAtAtm, true
	default:
		return "", false
	}
}
