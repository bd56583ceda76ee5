// Package identifier builds the deterministic device-id to FROST-identifier
// bijection every honest participant must compute identically.
package identifier

import (
	"sort"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// Map is the device-id <-> FROST identifier bijection for one session's
// accepted participant set. Identifiers are 1-indexed positions in the
// lexicographically sorted device-id list, matching identifier_from_index.
type Map struct {
	idByDevice map[string]uint16
	deviceByID map[uint16]string
	ordered    []string
}

// Build sorts deviceIDs lexicographically and assigns identifiers 1..N to
// positions 1..N. The input is deduplicated before sorting so a device
// appearing twice in a roster does not consume two identifiers.
func Build(deviceIDs []string) *Map {
	seen := make(map[string]struct{}, len(deviceIDs))
	unique := make([]string, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	m := &Map{
		idByDevice: make(map[string]uint16, len(unique)),
		deviceByID: make(map[uint16]string, len(unique)),
		ordered:    unique,
	}
	for i, deviceID := range unique {
		id := uint16(i + 1) // identifier_from_index is 1-based and non-zero
		m.idByDevice[deviceID] = id
		m.deviceByID[id] = deviceID
	}
	return m
}

// Len returns N, the number of participants covered by this map.
func (m *Map) Len() int { return len(m.ordered) }

// Devices returns the sorted device-id list backing this map.
func (m *Map) Devices() []string {
	out := make([]string, len(m.ordered))
	copy(out, m.ordered)
	return out
}

// IdentifierFor resolves a device-id to its identifier.
func (m *Map) IdentifierFor(deviceID string) (uint16, error) {
	id, ok := m.idByDevice[deviceID]
	if !ok {
		return 0, errs.New(errs.RosterMismatch, "identifier.IdentifierFor")
	}
	return id, nil
}

// DeviceFor resolves an identifier back to its device-id.
func (m *Map) DeviceFor(id uint16) (string, error) {
	deviceID, ok := m.deviceByID[id]
	if !ok {
		return "", errs.New(errs.RosterMismatch, "identifier.DeviceFor")
	}
	return deviceID, nil
}

// Equal reports whether two maps assign the same identifiers to the same
// device-ids — used to detect roster divergence between honest participants.
func (m *Map) Equal(other *Map) bool {
	if other == nil || len(m.idByDevice) != len(other.idByDevice) {
		return false
	}
	for deviceID, id := range m.idByDevice {
		otherID, ok := other.idByDevice[deviceID]
		if !ok || otherID != id {
			return false
		}
	}
	return true
}
