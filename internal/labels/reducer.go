package labels

import (
	"time"

	"github.com/nerrad567/labeldash/internal/session"
)

// State keys owned by the labels reducer.
const (
	KeyProduct       = "product"
	KeyExpires       = "expires"
	KeyBatch         = "batch"
	KeyQuantity      = "quantity"
	KeyPrinters      = "printers"
	KeyJobsSubmitted = "jobs_submitted"
	KeyLastJobID     = "last_job_id"
)

// Action types handled by Reducer.
const (
	ActionJobSubmitted    = "JOB_SUBMITTED"
	ActionPrinterStatus   = "PRINTER_STATUS"
	ActionDeliveryDetails = "DELIVERY_DETAILS"
)

// JobSubmitted records that a print job was handed to the session.
type JobSubmitted struct {
	JobID string
	Items int
	Qty   int
}

func (JobSubmitted) ActionType() string { return ActionJobSubmitted }

// PrinterStatus records a liveness report from a printer listener.
type PrinterStatus struct {
	PrinterID string
	Alive     bool
	SeenAt    time.Time
}

func (PrinterStatus) ActionType() string { return ActionPrinterStatus }

// DeliveryDetails carries the delivery the operator is labelling.
type DeliveryDetails struct {
	Product  string
	Expires  any
	Batch    string
	Quantity string
}

func (DeliveryDetails) ActionType() string { return ActionDeliveryDetails }

// PrinterInfo is the last known state of one printer listener.
type PrinterInfo struct {
	Alive    bool      `json:"alive"`
	LastSeen time.Time `json:"last_seen"`
}

// InitialState returns the application state a dashboard starts with.
func InitialState() session.State {
	return session.State{
		KeyProduct:       "",
		KeyExpires:       nil,
		KeyBatch:         "",
		KeyQuantity:      "",
		KeyPrinters:      map[string]PrinterInfo{},
		KeyJobsSubmitted: 0,
		KeyLastJobID:     "",
	}
}

// Reducer applies labels actions. Any other action type is an error
// wrapping session.ErrUnhandledAction.
func Reducer(state session.State, action session.Action) (session.State, error) {
	switch a := action.(type) {
	case JobSubmitted:
		count, _ := state[KeyJobsSubmitted].(int)
		state[KeyJobsSubmitted] = count + 1
		state[KeyLastJobID] = a.JobID
		return state, nil

	case PrinterStatus:
		prev, _ := state[KeyPrinters].(map[string]PrinterInfo)
		next := make(map[string]PrinterInfo, len(prev)+1)
		for id, info := range prev {
			next[id] = info
		}
		next[a.PrinterID] = PrinterInfo{Alive: a.Alive, LastSeen: a.SeenAt}
		state[KeyPrinters] = next
		return state, nil

	case DeliveryDetails:
		state[KeyProduct] = a.Product
		state[KeyExpires] = a.Expires
		state[KeyBatch] = a.Batch
		state[KeyQuantity] = a.Quantity
		return state, nil

	default:
		return nil, session.UnhandledAction(action)
	}
}
