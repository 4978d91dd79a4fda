// Package history keeps a local record of the print jobs this dashboard
// submitted.
//
// Jobs are fire-and-forget on the wire, so the history is the only place an
// operator can see what was sent and when. Rows live in the print_jobs table
// created by the embedded migrations.
package history
