package rsm

import (
	"testing"

	"lockservd/pkg/logger"
)

type testLogger struct{}

func (testLogger) Trace(level logger.Severity, module string, message string) {}
func (testLogger) Release()                                                  {}

// fakeStateMachine is a minimal StateMachine used to exercise
// TransferTo without depending on the lock service package.
type fakeStateMachine struct {
	state []byte
}

func (f *fakeStateMachine) MarshalState() []byte { return append([]byte(nil), f.state...) }
func (f *fakeStateMachine) UnmarshalState(data []byte) error {
	f.state = append([]byte(nil), data...)
	return nil
}

func TestPromoteDemote(t *testing.T) {
	r := New(testLogger{})

	if r.IsPrimary() {
		t.Fatalf("a fresh replica must not start out as primary")
	}

	r.Promote()
	if !r.IsPrimary() {
		t.Fatalf("expected replica to be primary after Promote")
	}

	r.Demote()
	if r.IsPrimary() {
		t.Fatalf("expected replica to no longer be primary after Demote")
	}
}

func TestTransferToMovesPrimaryStatus(t *testing.T) {
	source := New(testLogger{})
	target := New(testLogger{})

	sourceSM := &fakeStateMachine{state: []byte("hello")}
	targetSM := &fakeStateMachine{}

	source.SetStateMachine(sourceSM)
	target.SetStateMachine(targetSM)

	source.Promote()

	if err := source.TransferTo(target); err != nil {
		t.Fatalf("TransferTo failed: %v", err)
	}

	if source.IsPrimary() {
		t.Fatalf("expected source to step down after transfer")
	}
	if !target.IsPrimary() {
		t.Fatalf("expected target to become primary after transfer")
	}
	if string(targetSM.state) != "hello" {
		t.Fatalf("expected target state machine to receive the source's snapshot, got %q", targetSM.state)
	}
}

func TestTransferToRequiresStateMachine(t *testing.T) {
	source := New(testLogger{})
	target := New(testLogger{})

	if err := source.TransferTo(target); err == nil {
		t.Fatalf("expected an error when the source has no state machine attached")
	}
}
