// Package realtime fans out events to per-topic subscribers without blocking publishers.
package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	EventMoodChanged = "mood"
	EventNotice      = "notice"
	EventHeartbeat   = "heartbeat"
)

const defaultBufferSize = 16

// Message is one event addressed to every subscriber of Topic.
type Message struct {
	Topic     string
	EventType string
	Payload   any
	Timestamp time.Time
}

// Notice is the payload of EventNotice messages, shown to the user as a toast.
type Notice struct {
	Level       string `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Dispatcher delivers messages to subscribers of a topic. Slow subscribers drop messages.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a stream for the topic until ctx ends or cleanup is called.
func (d *Dispatcher) Subscribe(ctx context.Context, topic string) (<-chan Message, func()) {
	if topic == "" {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	entry := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(topic, entry)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(topic, entry.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return entry.stream, cleanup
}

// Publish delivers the message to current subscribers of its topic.
func (d *Dispatcher) Publish(message Message) {
	if message.Topic == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, entry := range d.subscribers[message.Topic] {
		select {
		case entry.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams are registered for the topic.
func (d *Dispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(topic string, entry *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*subscriber)
	}
	d.subscribers[topic][entry.id] = entry
}

func (d *Dispatcher) unregister(topic string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	topicSubscribers := d.subscribers[topic]
	if topicSubscribers == nil {
		return
	}
	delete(topicSubscribers, subscriberID)
	if len(topicSubscribers) == 0 {
		delete(d.subscribers, topic)
	}
}
