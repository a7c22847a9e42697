package results

import "sync"

// Table names the presentation layer redraws
const (
	TableCampaigns = "campaignTable"
	TableForms     = "formTable"
)

// Notifier fans redraw signals out to subscribers. Slow subscribers miss
// signals instead of blocking the aggregator.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewNotifier creates a notifier with no subscribers
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan string)}
}

// Subscription receives the names of tables to redraw on C
type Subscription struct {
	C  <-chan string
	id int
	n  *Notifier
}

// Subscribe registers a new subscriber. On a closed notifier the returned
// subscription's channel is already closed.
func (n *Notifier) Subscribe() *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan string, 16)
	if n.closed {
		close(ch)
		return &Subscription{C: ch, id: -1, n: n}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	return &Subscription{C: ch, id: id, n: n}
}

// Close unregisters the subscription and closes its channel
func (s *Subscription) Close() {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	if ch, ok := s.n.subs[s.id]; ok {
		delete(s.n.subs, s.id)
		close(ch)
	}
}

// Redraw signals every subscriber that table changed
func (n *Notifier) Redraw(table string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- table:
		default:
		}
	}
}

// Close releases all subscriptions. Later Redraw calls are no-ops.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
