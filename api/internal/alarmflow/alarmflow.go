// Package alarmflow encodes how an alarm reacts to a status change. Effects
// key off the status name, not its id, so tenant status catalogs can carry
// different ids for the same lifecycle.
package alarmflow

import (
	"time"

	"github.com/google/uuid"
)

// Well-known status names.
const (
	StatusActive       = "Active"
	StatusUnacked      = "Unacked"
	StatusAcknowledged = "Acknowledged"
	StatusResolved     = "Resolved"
)

// Severity levels carried by alarm types.
const (
	SeverityCritical = "Critical"
	SeverityMajor    = "Major"
	SeverityMinor    = "Minor"
	SeverityWarning  = "Warning"
)

// Severities lists the catalog vocabulary in rank order. Statistics shaping
// seeds every bucket from it so absent severities report as zero.
func Severities() []string {
	return []string{SeverityCritical, SeverityMajor, SeverityMinor, SeverityWarning}
}

// Change describes the column updates a status transition implies.
type Change struct {
	StatusID       int64
	AcknowledgedBy *uuid.UUID
	AcknowledgedAt *time.Time
	ResolvedBy     *uuid.UUID
	ResolvedAt     *time.Time
	UpdatedAt      time.Time
}

// Apply computes the update for moving an alarm to the named status. Moving
// to Acknowledged stamps the acknowledging actor and time, Resolved stamps
// the resolving actor and time, and every other status only refreshes the
// update timestamp. No transition is rejected: operators may reopen, re-ack
// or resolve from any state.
func Apply(statusID int64, statusName string, actor uuid.UUID, now time.Time) Change {
	ch := Change{StatusID: statusID, UpdatedAt: now}
	switch statusName {
	case StatusAcknowledged:
		ch.AcknowledgedBy = &actor
		ch.AcknowledgedAt = &now
	case StatusResolved:
		ch.ResolvedBy = &actor
		ch.ResolvedAt = &now
	}
	return ch
}
