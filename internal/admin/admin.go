// Package admin provides operator-only endpoints for manual intervention
// in protection state.
package admin

import "time"

// SweepReport summarizes the results of an on-demand maintenance sweep.
type SweepReport struct {
	IdleSessionsEnded int       `json:"idleSessionsEnded"`
	ArchivesCompacted int       `json:"archivesCompacted"`
	BlocksPruned      int       `json:"blocksPruned"`
	Timestamp         time.Time `json:"timestamp"`
}
