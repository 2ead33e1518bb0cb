package mel

import "fmt"

// UngroupedEventName names the event for injects with an empty Serial.
const UngroupedEventName = "Ungrouped"

// Event summarizes the injects that share a Serial value.
// Events are derived data and are recomputed on every document change.
type Event struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// BuildEvents groups injects by Serial in first-seen order.
func BuildEvents(injects []Inject) []Event {
	events := make([]Event, 0)
	index := make(map[string]int)
	for _, in := range injects {
		name := in.Serial
		if name == "" {
			name = UngroupedEventName
		}
		if i, ok := index[name]; ok {
			events[i].Count++
			continue
		}
		index[name] = len(events)
		events = append(events, Event{
			ID:    fmt.Sprintf("event-%d", len(events)+1),
			Name:  name,
			Count: 1,
		})
	}
	return events
}
