package models

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// OccupiesSeats reports whether a booking in this status counts against availability.
func (s BookingStatus) OccupiesSeats() bool {
	return s == StatusConfirmed
}

// TransitionFailure says why a transition was refused.
type TransitionFailure int

const (
	TransitionOK TransitionFailure = iota
	// FailureTerminal: the booking is already cancelled or completed.
	FailureTerminal
	// FailureNotAllowed: the pair is not in the table, e.g. confirmed -> pending.
	FailureNotAllowed
	FailureUnknownStatus
)

type TransitionResult struct {
	From    BookingStatus
	To      BookingStatus
	Failure TransitionFailure
}

func (r TransitionResult) OK() bool { return r.Failure == TransitionOK }

var transitions = map[BookingStatus]map[BookingStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusCompleted: true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusCompleted: true,
	},
	StatusCancelled: {},
	StatusCompleted: {},
}

// Transition checks a move against the booking lifecycle table. It never panics;
// the caller decides how to surface a failure.
func Transition(from, to BookingStatus) TransitionResult {
	res := TransitionResult{From: from, To: to}
	switch {
	case !from.Valid() || !to.Valid():
		res.Failure = FailureUnknownStatus
	case from.Terminal():
		res.Failure = FailureTerminal
	case !transitions[from][to]:
		res.Failure = FailureNotAllowed
	}
	return res
}

func CanCancel(s BookingStatus) bool {
	return Transition(s, StatusCancelled).OK()
}

func CanComplete(s BookingStatus) bool {
	return Transition(s, StatusCompleted).OK()
}
