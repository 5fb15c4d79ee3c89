// Package diff compares successive port snapshots of a target and produces
// typed change events for ports that opened, closed, or changed service.
package diff

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mfolkes/portwarden/internal/scanning"
)

// ChangeKind identifies the type of a detected change.
type ChangeKind string

const (
	// PortOpened means a port is present in the new snapshot but not the old.
	PortOpened ChangeKind = "port_opened"
	// PortClosed means a port is present in the old snapshot but not the new.
	PortClosed ChangeKind = "port_closed"
	// ServiceChanged means a port is open in both snapshots with a
	// different service label. Banner-only changes do not count.
	ServiceChanged ChangeKind = "service_change"
)

// ChangeEvent records one detected change on a target. Events are immutable
// once created; they are appended to a target's change log and never edited.
type ChangeEvent struct {
	ID         uuid.UUID  `json:"id"`
	Kind       ChangeKind `json:"kind"`
	Target     string     `json:"target"`
	Port       uint16     `json:"port"`
	Service    string     `json:"service,omitempty"`
	OldService string     `json:"old_service,omitempty"`
	NewService string     `json:"new_service,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Message    string     `json:"message"`
}

// Diff compares two snapshots of the same target and returns the changes
// between them in canonical order: opened ports first, then closed ports,
// then service changes, each ascending by port. For a fixed snapshot pair
// the same events are produced every time.
func Diff(oldSnap, newSnap scanning.Snapshot) []ChangeEvent {
	target := newSnap.Target
	if target == "" {
		target = oldSnap.Target
	}
	now := time.Now()

	var events []ChangeEvent

	for _, port := range newSnap.OpenPorts() {
		if _, existed := oldSnap.Ports[port]; !existed {
			info := newSnap.Ports[port]
			events = append(events, ChangeEvent{
				ID:        uuid.New(),
				Kind:      PortOpened,
				Target:    target,
				Port:      port,
				Service:   info.Service,
				Timestamp: now,
				Message:   fmt.Sprintf("🚨 NEW PORT OPENED on %s:%d (%s)", target, port, info.Service),
			})
		}
	}

	for _, port := range oldSnap.OpenPorts() {
		if _, present := newSnap.Ports[port]; !present {
			info := oldSnap.Ports[port]
			events = append(events, ChangeEvent{
				ID:        uuid.New(),
				Kind:      PortClosed,
				Target:    target,
				Port:      port,
				Service:   info.Service,
				Timestamp: now,
				Message:   fmt.Sprintf("🚨 PORT CLOSED on %s:%d (%s)", target, port, info.Service),
			})
		}
	}

	for _, port := range newSnap.OpenPorts() {
		oldInfo, existed := oldSnap.Ports[port]
		if !existed {
			continue
		}
		newInfo := newSnap.Ports[port]
		if oldInfo.Service != newInfo.Service {
			events = append(events, ChangeEvent{
				ID:         uuid.New(),
				Kind:       ServiceChanged,
				Target:     target,
				Port:       port,
				OldService: oldInfo.Service,
				NewService: newInfo.Service,
				Timestamp:  now,
				Message: fmt.Sprintf("🔄 SERVICE CHANGE on %s:%d (%s → %s)",
					target, port, oldInfo.Service, newInfo.Service),
			})
		}
	}

	return events
}

// SortCanonical orders events by kind (opened, closed, service-changed)
// then ascending port. Diff already emits events in this order; the helper
// exists for callers that merge event lists from several sources.
func SortCanonical(events []ChangeEvent) {
	rank := map[ChangeKind]int{
		PortOpened:     0,
		PortClosed:     1,
		ServiceChanged: 2,
	}
	sort.SliceStable(events, func(i, j int) bool {
		if rank[events[i].Kind] != rank[events[j].Kind] {
			return rank[events[i].Kind] < rank[events[j].Kind]
		}
		return events[i].Port < events[j].Port
	})
}
