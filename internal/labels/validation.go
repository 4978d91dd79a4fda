package labels

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxItems       = 50
	maxKeyLength   = 100
	maxValueLength = 1000
	minQty         = 1
	maxQty         = 500
)

// Pre-computed validation set for O(1) label type lookups.
var validLabelTypes map[LabelType]struct{}

func init() {
	validLabelTypes = make(map[LabelType]struct{}, len(AllLabelTypes()))
	for _, lt := range AllLabelTypes() {
		validLabelTypes[lt] = struct{}{}
	}
}

// ValidateJob checks a print job before it is submitted.
// Returns an error describing the first validation failure found.
func ValidateJob(j *PrintJob) error {
	if j == nil {
		return ErrInvalidJob
	}
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: dashboard id is required", ErrInvalidJob)
	}
	if len(j.Items) == 0 {
		return ErrNoItems
	}
	if len(j.Items) > maxItems {
		return fmt.Errorf("%w: exceeds maximum of %d items", ErrInvalidJob, maxItems)
	}
	for i, item := range j.Items {
		if err := ValidateItem(item); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	if j.Qty < minQty || j.Qty > maxQty {
		return fmt.Errorf("%w: qty must be %d-%d", ErrInvalidQty, minQty, maxQty)
	}
	return nil
}

// ValidateItem checks that a label item has all three fields.
func ValidateItem(item LabelItem) error {
	if strings.TrimSpace(item.Key) == "" {
		return fmt.Errorf("%w: labelKey is required", ErrInvalidItem)
	}
	if strings.TrimSpace(item.Value) == "" {
		return fmt.Errorf("%w: labelValue is required", ErrInvalidItem)
	}
	if len(item.Key) > maxKeyLength {
		return fmt.Errorf("%w: labelKey exceeds %d characters", ErrInvalidItem, maxKeyLength)
	}
	if len(item.Value) > maxValueLength {
		return fmt.Errorf("%w: labelValue exceeds %d characters", ErrInvalidItem, maxValueLength)
	}
	if _, ok := validLabelTypes[item.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLabelType, item.Type)
	}
	return nil
}
