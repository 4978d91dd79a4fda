// Package labels implements the label printing domain on top of the session.
//
// It defines print jobs (label items plus a quantity), validates them,
// submits them to the printer listener over MQTT, and provides the
// application reducer and message action the session applies to inbound
// printer status and delivery details messages.
//
// Wire format of a print job, published retained with QoS 1 on print/:
//
//	{
//	  "id": "dashboard-01",
//	  "jobId": "2f1c…",
//	  "labelItems": [{"labelKey": "Batch", "labelValue": "B-12", "labelType": "text"}],
//	  "qty": 2,
//	  "timestamp": "2024-05-01T09:30:00+01:00"
//	}
package labels
