package domain

import (
	"testing"
	"time"
)

// ─── State Machine Tests ────────────────────────────────────────────────────

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from EventState
		to   EventState
		want bool
	}{
		{"scheduled to locked", EventScheduled, EventLocked, true},
		{"scheduled to user cancel", EventScheduled, EventCancelledByUser, true},
		{"scheduled cannot skip to live", EventScheduled, EventLive, false},
		{"scheduled cannot skip to completed", EventScheduled, EventCompleted, false},
		{"locked to live", EventLocked, EventLive, true},
		{"locked to user cancel", EventLocked, EventCancelledByUser, true},
		{"locked cannot resolve directly", EventLocked, EventCompletedNoShowA, false},
		{"live to completed", EventLive, EventCompleted, true},
		{"live to noshow a", EventLive, EventCompletedNoShowA, true},
		{"live to noshow b", EventLive, EventCompletedNoShowB, true},
		{"live to mutual noshow", EventLive, EventMutualNoShow, true},
		{"live to system failure", EventLive, EventSystemFailure, true},
		{"live cannot user-cancel", EventLive, EventCancelledByUser, false},
		{"terminal admits nothing", EventCompleted, EventLive, false},
		{"terminal to terminal rejected", EventMutualNoShow, EventCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestEventState_Terminal(t *testing.T) {
	for _, s := range []EventState{EventScheduled, EventLocked, EventLive} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []EventState{
		EventCompleted, EventCompletedNoShowA, EventCompletedNoShowB,
		EventMutualNoShow, EventSystemFailure, EventCancelledByUser,
	} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

// ─── Cancellation Boundary ──────────────────────────────────────────────────

func TestEvent_Cancellable(t *testing.T) {
	lock := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	e := &SpeedDateEvent{LockTime: lock, EventTime: lock.Add(LockLead)}

	if !e.Cancellable(lock.Add(-time.Second)) {
		t.Error("cancel at lockTime-1s must be accepted")
	}
	if e.Cancellable(lock) {
		t.Error("cancel exactly at lockTime must be rejected")
	}
	if e.Cancellable(lock.Add(time.Second)) {
		t.Error("cancel at lockTime+1s must be rejected")
	}
}

// ─── Resolution Classification ──────────────────────────────────────────────

func TestResolveOutcome(t *testing.T) {
	attended := Attendance{Joined: true}
	absent := Attendance{}

	tests := []struct {
		name string
		a, b Attendance
		want EventState
	}{
		{"both stayed", attended, attended, EventCompleted},
		{"only a joined", attended, absent, EventCompletedNoShowB},
		{"only b joined", absent, attended, EventCompletedNoShowA},
		{"neither joined", absent, absent, EventMutualNoShow},
		{
			"early exit below minimum forfeits",
			Attendance{Joined: true, Exited: true, AttendedSeconds: 90},
			attended,
			EventCompletedNoShowA,
		},
		{
			"exit past full attendance counts as attended",
			Attendance{Joined: true, Exited: true, AttendedSeconds: 400},
			attended,
			EventCompleted,
		},
		{
			"ambiguous band without corroboration forfeits",
			Attendance{Joined: true, Exited: true, AttendedSeconds: 200},
			attended,
			EventCompletedNoShowA,
		},
		{
			"ambiguous band with verified failure resolves as system failure",
			Attendance{Joined: true, Exited: true, AttendedSeconds: 200, FailureVerified: true},
			attended,
			EventSystemFailure,
		},
		{
			"both exit below minimum",
			Attendance{Joined: true, Exited: true, AttendedSeconds: 30},
			Attendance{Joined: true, Exited: true, AttendedSeconds: 45},
			EventMutualNoShow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveOutcome(tt.a, tt.b); got != tt.want {
				t.Errorf("ResolveOutcome() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAttendance_Attended(t *testing.T) {
	tests := []struct {
		name string
		a    Attendance
		want bool
	}{
		{"never joined", Attendance{}, false},
		{"joined and stayed", Attendance{Joined: true}, true},
		{"stayed with short accrual still counts", Attendance{Joined: true, AttendedSeconds: 60}, true},
		{"exited at 90s", Attendance{Joined: true, Exited: true, AttendedSeconds: 90}, false},
		{"exited at 299s", Attendance{Joined: true, Exited: true, AttendedSeconds: 299}, false},
		{"exited at 300s", Attendance{Joined: true, Exited: true, AttendedSeconds: 300}, true},
		{"exited at 400s", Attendance{Joined: true, Exited: true, AttendedSeconds: 400}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Attended(); got != tt.want {
				t.Errorf("Attended() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ─── Request Tests ──────────────────────────────────────────────────────────

func TestRequest_HasSlot(t *testing.T) {
	t1 := time.Date(2026, 3, 12, 19, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	r := &SpeedDateRequest{ProposedSlots: []Slot{{Start: t1}, {Start: t2}}}

	if !r.HasSlot(t1) || !r.HasSlot(t2) {
		t.Error("proposed slots should match")
	}
	if r.HasSlot(t1.Add(time.Minute)) {
		t.Error("unproposed slot should not match")
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	if RequestSent.Terminal() {
		t.Error("SENT is the only non-terminal status")
	}
	for _, s := range []RequestStatus{RequestAccepted, RequestDeclined, RequestExpired, RequestCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestExitReason(t *testing.T) {
	if !ExitTechnical.Valid() || !ExitPersonal.Valid() || !ExitSafety.Valid() {
		t.Error("known reasons should validate")
	}
	if ExitReason("boredom").Valid() {
		t.Error("unknown reason should not validate")
	}
	if ExitTechnical.Escalate() || ExitPersonal.Escalate() {
		t.Error("only safety reasons escalate")
	}
	if !ExitSafety.Escalate() {
		t.Error("safety reason must escalate")
	}
}
