// Package panel serves the labeldash browser dashboard as an embedded asset.
//
// The page, script and stylesheet are embedded with go:embed, so the binary
// has no runtime dependency on external files. The page loads
// /config/config.json, follows the session over /api/v1/ws and submits
// print jobs to /api/v1/print.
//
// Unknown paths fall back to index.html. Every response is sent with
// Cache-Control: no-cache so a dashboard picks up a new build on reload.
package panel
