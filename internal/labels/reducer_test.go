package labels

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/labeldash/internal/session"
)

type otherAction struct{}

func (otherAction) ActionType() string { return "OTHER" }

func TestReducer_JobSubmitted(t *testing.T) {
	state := InitialState()

	for i := 0; i < 2; i++ {
		next, err := Reducer(state.Clone(), JobSubmitted{JobID: "j", Items: 1, Qty: 1})
		if err != nil {
			t.Fatalf("Reducer() error = %v", err)
		}
		state = next
	}

	if state[KeyJobsSubmitted] != 2 || state[KeyLastJobID] != "j" {
		t.Errorf("state = %v", state)
	}
}

func TestReducer_PrinterStatusCopiesMap(t *testing.T) {
	before := InitialState()
	seen := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	after, err := Reducer(before.Clone(), PrinterStatus{PrinterID: "p1", Alive: true, SeenAt: seen})
	if err != nil {
		t.Fatalf("Reducer() error = %v", err)
	}

	printers := after[KeyPrinters].(map[string]PrinterInfo)
	if info := printers["p1"]; !info.Alive || !info.LastSeen.Equal(seen) {
		t.Errorf("printers[p1] = %+v", info)
	}
	if len(before[KeyPrinters].(map[string]PrinterInfo)) != 0 {
		t.Error("previous state's printer map was modified")
	}
}

func TestReducer_DeliveryDetails(t *testing.T) {
	state, err := Reducer(InitialState(), DeliveryDetails{Product: "apples", Batch: "B-1", Quantity: "12", Expires: "2024-06-01"})
	if err != nil {
		t.Fatalf("Reducer() error = %v", err)
	}
	if state[KeyProduct] != "apples" || state[KeyBatch] != "B-1" || state[KeyQuantity] != "12" || state[KeyExpires] != "2024-06-01" {
		t.Errorf("state = %v", state)
	}
}

func TestReducer_UnknownAction(t *testing.T) {
	_, err := Reducer(InitialState(), otherAction{})
	if !errors.Is(err, session.ErrUnhandledAction) {
		t.Errorf("error = %v, want ErrUnhandledAction", err)
	}
}
