package event

// Recorder keeps every event it receives, in delivery order.
type Recorder struct {
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Subscriptions() []Subscription {
	return []Subscription{{Kind: KindAny, Handle: func(e Event) error {
		r.events = append(r.events, e)
		return nil
	}}}
}

func (r *Recorder) Events() []Event { return r.events }

// Last returns the most recent event, or nil.
func (r *Recorder) Last() Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// Filter returns the recorded events of the given kinds.
func (r *Recorder) Filter(kinds ...Kind) []Event {
	var out []Event
	for _, e := range r.events {
		for _, k := range kinds {
			if e.Kind() == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
