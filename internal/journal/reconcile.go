package journal

// reconcile merges outcome shadow records into their base events. Later
// updates overwrite earlier ones as the scan proceeds, so for any target the
// last update in append order wins. Base events are copied before their
// outcome is substituted; the input slice is never mutated.
//
// With includeUpdates, raw shadow records are emitted too, in append order.
func reconcile(events []Event, includeUpdates bool) []Event {
	var outcomes map[string]map[string]any
	for _, ev := range events {
		if !ev.IsUpdate() {
			continue
		}
		target := ev.TargetID()
		if target == "" {
			continue
		}
		if outcomes == nil {
			outcomes = make(map[string]map[string]any)
		}
		outcomes[target] = ev.Outcome()
	}

	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.IsUpdate() {
			if includeUpdates {
				out = append(out, ev)
			}
			continue
		}
		if oc, ok := outcomes[ev.ID]; ok {
			ev = ev.withOutcome(oc)
		}
		out = append(out, ev)
	}
	return out
}
