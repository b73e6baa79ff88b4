// Package bus is the node's in-process publish/subscribe fabric. Topics are
// slash-separated segment paths held in a trie; messages fan out to
// subscriber channels without ever blocking the publisher, and a retained
// message per topic gives late subscribers the current value. A subscription
// ending in the "#" segment receives a whole subtree, which is how the
// monitor follows everything under "node" at once.
package bus

import (
	"strings"
	"sync"
)

// Wildcard is the subtree-match segment, valid only as the final segment of
// a subscription topic. In a published topic it is just a literal.
const Wildcard = "#"

// Topic is a slash-separated path, one string per segment.
type Topic []string

// T builds a Topic from segments.
func T(segments ...string) Topic { return Topic(segments) }

// Parse splits a slash-separated path into a Topic.
func Parse(path string) Topic {
	if path == "" {
		return nil
	}
	return Topic(strings.Split(path, "/"))
}

func (t Topic) String() string { return strings.Join(t, "/") }

// wild strips a trailing Wildcard, reporting whether one was present.
func (t Topic) wild() (Topic, bool) {
	if n := len(t); n > 0 && t[n-1] == Wildcard {
		return t[:n-1], true
	}
	return t, false
}

// Message is one bus datum. A retained message persists on its topic and is
// replayed to late subscribers; retaining a nil payload clears the slot.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// Subscription is one subscriber queue.
type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription // exact-topic subscribers
	wild     []*Subscription // subtree subscribers anchored here
	retained *Message
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.wild) == 0 && len(n.children) == 0 && n.retained == nil
}

// Bus is the fabric itself. All clients share one Bus; each opens its own
// Connection.
type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// New creates a bus. queueLen is each subscription's buffer depth; a
// subscriber that falls further behind loses its oldest queued message.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// deliver enqueues without blocking, dropping the oldest queued message when
// the subscriber is full so the newest always lands.
func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- msg:
	default:
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	prefix, isWild := sub.topic.wild()

	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, seg := range prefix {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}

	if isWild {
		n.wild = append(n.wild, sub)
		replayRetained(n, sub)
		return
	}
	n.subs = append(n.subs, sub)
	if n.retained != nil {
		deliver(sub, n.retained)
	}
}

// replayRetained hands every retained message in the subtree to a new
// subtree subscriber.
func replayRetained(n *node, sub *Subscription) {
	if n.retained != nil {
		deliver(sub, n.retained)
	}
	for _, child := range n.children {
		replayRetained(child, sub)
	}
}

// Publish fans msg out to the exact subscribers of its topic and to subtree
// subscribers anchored anywhere along it. Never blocks.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, sub := range n.wild {
		deliver(sub, msg)
	}
	for _, seg := range msg.Topic {
		child, ok := n.children[seg]
		if !ok {
			if !msg.Retained {
				return
			}
			if n.children == nil {
				n.children = make(map[string]*node)
			}
			child = &node{}
			n.children[seg] = child
		}
		n = child
		for _, sub := range n.wild {
			deliver(sub, msg)
		}
	}

	for _, sub := range n.subs {
		deliver(sub, msg)
	}

	if msg.Retained {
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	prefix, isWild := sub.topic.wild()

	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(prefix))
	for _, seg := range prefix {
		child, ok := n.children[seg]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	if isWild {
		n.wild = removeSub(n.wild, sub)
	} else {
		n.subs = removeSub(n.subs, sub)
	}

	// Prune nodes left empty.
	for i := len(prefix) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[prefix[i]]
		if !child.empty() {
			break
		}
		delete(parent.children, prefix[i])
	}
}

func removeSub(subs []*Subscription, sub *Subscription) []*Subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Connection scopes a client's subscriptions so Disconnect can release them
// all at once.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	name string
}

// NewConnection opens a named connection. The name only identifies the
// client in diagnostics.
func (b *Bus) NewConnection(name string) *Connection {
	return &Connection{bus: b, name: name}
}

func (c *Connection) Name() string { return c.name }

// Publish sends a message through the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe opens a subscription. A topic ending in the "#" segment receives
// the whole subtree beneath it, with its retained messages replayed first.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes its
// channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes every subscription owned by this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
