// Package conversation assembles streamed assistant content into an ordered
// list of messages.
package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Message struct {
	ID         string    `json:"id"`
	Sender     Sender    `json:"sender"`
	Content    string    `json:"content"`
	IsComplete bool      `json:"is_complete"`
	Timestamp  time.Time `json:"timestamp"`
}

// Assembler owns the message sequence of one conversation. At most one
// assistant message is open (incomplete) at a time, and it is always the last
// assistant message appended. Readers get copies.
type Assembler struct {
	mu       sync.Mutex
	messages []Message
	open     int // index of the open assistant message, -1 when none
	lastEnd  bool

	watchers map[uint64]func([]Message)
	nextID   uint64

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

func NewAssembler() *Assembler {
	return &Assembler{
		open:     -1,
		watchers: make(map[uint64]func([]Message)),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		log:      logger.For(logger.CONVERSATION),
	}
}

// OnStart opens a new, empty assistant message. A message left open by a
// previous turn is completed first.
func (a *Assembler) OnStart() {
	a.mu.Lock()
	if a.open >= 0 {
		a.log.Warn().Str("message_id", a.messages[a.open].ID).Msg("Start received while a message is open, closing it")
		a.closeLocked()
	}
	a.openLocked()
	a.mu.Unlock()

	a.notify()
}

// OnContent appends delta to the open assistant message, opening one when
// none is open.
func (a *Assembler) OnContent(delta string) {
	a.mu.Lock()
	if a.open < 0 {
		if a.lastEnd {
			a.log.Warn().Int("bytes", len(delta)).Msg("Content received after end, starting a new message")
		} else {
			a.log.Warn().Int("bytes", len(delta)).Msg("Content received without start")
		}
		a.openLocked()
	}
	a.messages[a.open].Content += delta
	a.mu.Unlock()

	a.notify()
}

// OnEnd completes the open assistant message. It is a no-op when none is
// open.
func (a *Assembler) OnEnd() {
	a.mu.Lock()
	if a.open < 0 {
		a.mu.Unlock()
		a.log.Debug().Msg("End received with no open message")
		return
	}
	a.closeLocked()
	a.mu.Unlock()

	a.notify()
}

// OnHistory replaces the whole sequence with the given records, oldest first,
// each record yielding a user message followed by an assistant message.
func (a *Assembler) OnHistory(records []protocol.HistoryRecord) {
	sorted := make([]protocol.HistoryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	messages := make([]Message, 0, 2*len(sorted))
	for _, r := range sorted {
		messages = append(messages,
			Message{
				ID:         a.newID(),
				Sender:     SenderUser,
				Content:    r.UserMessage,
				IsComplete: true,
				Timestamp:  r.Timestamp,
			},
			Message{
				ID:         a.newID(),
				Sender:     SenderAssistant,
				Content:    r.AssistantMessage,
				IsComplete: true,
				Timestamp:  r.Timestamp,
			},
		)
	}

	a.mu.Lock()
	a.messages = messages
	a.open = -1
	a.lastEnd = false
	a.mu.Unlock()

	a.log.Debug().Int("records", len(records)).Msg("Replaced messages from history")
	a.notify()
}

// AddUserMessage appends a complete user message.
func (a *Assembler) AddUserMessage(text string) Message {
	a.mu.Lock()
	msg := Message{
		ID:         a.newID(),
		Sender:     SenderUser,
		Content:    text,
		IsComplete: true,
		Timestamp:  a.now(),
	}
	a.messages = append(a.messages, msg)
	a.lastEnd = false
	a.mu.Unlock()

	a.notify()
	return msg
}

// ForceClose completes the open assistant message, if any, and reports
// whether one was open.
func (a *Assembler) ForceClose() bool {
	a.mu.Lock()
	if a.open < 0 {
		a.mu.Unlock()
		return false
	}
	a.log.Debug().Str("message_id", a.messages[a.open].ID).Msg("Force closing open message")
	a.closeLocked()
	a.mu.Unlock()

	a.notify()
	return true
}

// Reset removes every message.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.messages = nil
	a.open = -1
	a.lastEnd = false
	a.mu.Unlock()

	a.notify()
}

// Messages returns a copy of the sequence.
func (a *Assembler) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Open returns the open assistant message.
func (a *Assembler) Open() (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open < 0 {
		return Message{}, false
	}
	return a.messages[a.open], true
}

// Watch calls fn with a snapshot after every change. The returned function
// stops the notifications.
func (a *Assembler) Watch(fn func([]Message)) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.watchers[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.watchers, id)
			a.mu.Unlock()
		})
	}
}

func (a *Assembler) openLocked() {
	a.messages = append(a.messages, Message{
		ID:        a.newID(),
		Sender:    SenderAssistant,
		Timestamp: a.now(),
	})
	a.open = len(a.messages) - 1
	a.lastEnd = false
}

func (a *Assembler) closeLocked() {
	a.messages[a.open].IsComplete = true
	a.open = -1
	a.lastEnd = true
}

func (a *Assembler) snapshotLocked() []Message {
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Assembler) notify() {
	a.mu.Lock()
	if len(a.watchers) == 0 {
		a.mu.Unlock()
		return
	}
	snapshot := a.snapshotLocked()
	fns := make([]func([]Message), 0, len(a.watchers))
	for _, fn := range a.watchers {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
