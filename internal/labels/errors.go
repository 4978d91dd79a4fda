package labels

import "errors"

// Domain errors for the labels package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, labels.ErrNoItems) {
//	    // ask the operator for at least one label item
//	}
var (
	// ErrInvalidJob is returned when a print job fails validation.
	ErrInvalidJob = errors.New("print job: invalid")

	// ErrNoItems is returned when a print job has no label items.
	ErrNoItems = errors.New("print job: no label items")

	// ErrInvalidItem is returned when a label item is missing a key, value or type.
	ErrInvalidItem = errors.New("print job: invalid label item")

	// ErrInvalidLabelType is returned for a label type the printer does not support.
	ErrInvalidLabelType = errors.New("print job: invalid label type")

	// ErrInvalidQty is returned when the print quantity is out of range.
	ErrInvalidQty = errors.New("print job: invalid quantity")
)
