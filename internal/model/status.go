package model

import (
	"fmt"
	"strings"
)

// BatchStatus is the lifecycle status of a batch.
type BatchStatus string

const (
	StatusManufactured BatchStatus = "Manufactured"
	StatusInTransit    BatchStatus = "InTransit"
	StatusDelivered    BatchStatus = "Delivered"
	StatusDispensed    BatchStatus = "Dispensed"
	StatusRecalled     BatchStatus = "Recalled"
)

// statusTable maps ledger status codes (slice index) to statuses.
var statusTable = []BatchStatus{
	StatusManufactured,
	StatusInTransit,
	StatusDelivered,
	StatusDispensed,
	StatusRecalled,
}

var statusCodes = func() map[BatchStatus]uint8 {
	m := make(map[BatchStatus]uint8, len(statusTable))
	for i, s := range statusTable {
		m[s] = uint8(i)
	}
	return m
}()

// forward holds the only non-recall edges of the lifecycle.
var forward = map[BatchStatus]BatchStatus{
	StatusManufactured: StatusInTransit,
	StatusInTransit:    StatusDelivered,
	StatusDelivered:    StatusDispensed,
}

// Statuses returns every status in ledger-code order.
func Statuses() []BatchStatus {
	out := make([]BatchStatus, len(statusTable))
	copy(out, statusTable)
	return out
}

// StatusFromCode decodes a ledger status code.
func StatusFromCode(code uint8) (BatchStatus, error) {
	if int(code) >= len(statusTable) {
		return "", fmt.Errorf("model: unknown status code %d", code)
	}
	return statusTable[code], nil
}

// Code encodes the status for the ledger.
func (s BatchStatus) Code() (uint8, error) {
	c, ok := statusCodes[s]
	if !ok {
		return 0, fmt.Errorf("model: unknown status %q", string(s))
	}
	return c, nil
}

// Valid reports whether s is one of the known statuses.
func (s BatchStatus) Valid() bool {
	_, ok := statusCodes[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s BatchStatus) Terminal() bool { return s == StatusRecalled }

// ParseStatus accepts a status name in any letter case, with or without
// underscores (IN_TRANSIT, intransit, InTransit).
func ParseStatus(s string) (BatchStatus, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for _, st := range statusTable {
		if strings.ToLower(string(st)) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("model: unknown status %q", s)
}

// CanTransition reports whether from -> to is a legal lifecycle edge:
// Manufactured -> InTransit -> Delivered -> Dispensed, plus any non-terminal
// status -> Recalled.
func CanTransition(from, to BatchStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusRecalled {
		return true
	}
	next, ok := forward[from]
	return ok && next == to
}
