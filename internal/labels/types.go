package labels

import (
	"fmt"
	"strings"
	"time"
)

// LabelType selects how the printer renders a label value.
type LabelType string

const (
	LabelText    LabelType = "text"
	LabelBarcode LabelType = "barcode"
	LabelQR      LabelType = "QR"
	LabelQRAAS   LabelType = "QRAAS"
)

// AllLabelTypes returns every supported label type in display order.
func AllLabelTypes() []LabelType {
	return []LabelType{LabelText, LabelBarcode, LabelQR, LabelQRAAS}
}

// LabelItem is one key/value line of a label.
type LabelItem struct {
	Key   string    `json:"labelKey"`
	Value string    `json:"labelValue"`
	Type  LabelType `json:"labelType"`
}

// PrintJob is one request to the printer listener.
type PrintJob struct {
	// ID identifies the submitting dashboard.
	ID string `json:"id"`

	// JobID identifies this job. Assigned on submit.
	JobID string `json:"jobId,omitempty"`

	Items []LabelItem `json:"labelItems"`
	Qty   int         `json:"qty"`
}

// Payload renders the job as the JSON object sent to the printer.
func (j PrintJob) Payload() map[string]any {
	items := make([]map[string]any, 0, len(j.Items))
	for _, it := range j.Items {
		items = append(items, map[string]any{
			"labelKey":   it.Key,
			"labelValue": it.Value,
			"labelType":  string(it.Type),
		})
	}
	payload := map[string]any{
		"id":         j.ID,
		"labelItems": items,
		"qty":        j.Qty,
	}
	if j.JobID != "" {
		payload["jobId"] = j.JobID
	}
	return payload
}

// Submission is a print job as it was handed to the session.
type Submission struct {
	Job         PrintJob
	Topic       string
	SubmittedAt time.Time
}

// ParseItem parses the command-line form key=value:type.
//
// The type is taken after the last colon, so values may contain colons:
//
//	ParseItem("Expires=2024-05-01T10:00:text")
func ParseItem(s string) (LabelItem, error) {
	key, rest, ok := strings.Cut(s, "=")
	if !ok {
		return LabelItem{}, fmt.Errorf("%w: %q is not key=value:type", ErrInvalidItem, s)
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return LabelItem{}, fmt.Errorf("%w: %q has no label type", ErrInvalidItem, s)
	}
	item := LabelItem{
		Key:   strings.TrimSpace(key),
		Value: strings.TrimSpace(rest[:idx]),
		Type:  LabelType(strings.TrimSpace(rest[idx+1:])),
	}
	if err := ValidateItem(item); err != nil {
		return LabelItem{}, err
	}
	return item, nil
}
