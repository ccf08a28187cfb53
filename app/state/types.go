package state

// State is the small persisted application record shared with feed
// clients: it remembers, per client device, which feed item was at the
// top of the viewport so scroll positions survive reloads and sync
// across devices.
type State struct {
	DeviceIDToFirstVisibleItem map[string]string `json:"deviceIdToFirstVisibleItem"`
}

func DefaultState() State {
	return State{DeviceIDToFirstVisibleItem: map[string]string{}}
}

// WithFirstVisibleItem returns a copy of the state with the device's
// first visible item replaced.
func (s State) WithFirstVisibleItem(deviceID, itemID string) State {
	items := make(map[string]string, len(s.DeviceIDToFirstVisibleItem)+1)
	for k, v := range s.DeviceIDToFirstVisibleItem {
		items[k] = v
	}
	items[deviceID] = itemID
	s.DeviceIDToFirstVisibleItem = items
	return s
}
