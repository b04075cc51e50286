package core

// registry tracks known topics in display order and the current selection.
type registry struct {
	topics      map[TopicID]*topicConn
	order       []TopicID
	selected    TopicID
	hasSelected bool
}

func newRegistry() *registry {
	return &registry{topics: make(map[TopicID]*topicConn)}
}

// ensure returns the topic, creating it in Disconnected state if unknown.
func (r *registry) ensure(m *Manager, id TopicID) (*topicConn, bool) {
	if c, ok := r.topics[id]; ok {
		return c, false
	}
	c := newTopicConn(m, id)
	r.topics[id] = c
	r.order = append(r.order, id)
	return c, true
}

func (r *registry) get(id TopicID) (*topicConn, bool) {
	c, ok := r.topics[id]
	return c, ok
}

func (r *registry) selectedConn() (*topicConn, bool) {
	if !r.hasSelected {
		return nil, false
	}
	return r.get(r.selected)
}

// reorder puts listed topics first in the given order. Topics missing from
// the list keep their relative order after them.
func (r *registry) reorder(ids []TopicID) {
	seen := make(map[TopicID]struct{}, len(r.order))
	order := make([]TopicID, 0, len(r.order))
	for _, id := range ids {
		if _, ok := r.topics[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	for _, id := range r.order {
		if _, ok := seen[id]; ok {
			continue
		}
		order = append(order, id)
	}
	r.order = order
}

func (r *registry) summaries() []TopicSummary {
	out := make([]TopicSummary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.topics[id].summary())
	}
	return out
}

func (r *registry) all() []*topicConn {
	out := make([]*topicConn, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.topics[id])
	}
	return out
}
