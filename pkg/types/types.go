package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Rule is a compiled rarity rule. A one-byte Unit is a run of a single
// character; longer units are matched as back-to-back repetitions.
type Rule struct {
	Unit      []byte
	MinRepeat int
}

// SearchJob is one prefix search request. It is immutable once dispatched.
type SearchJob struct {
	ID     string
	Prefix string
	Rules  []Rule

	// Pre-decoded for fast byte-level matching (hot path).
	PrefixBytes []byte
}

// NewSearchJob creates a job with a fresh ID.
func NewSearchJob(prefix string, rules []Rule) *SearchJob {
	return &SearchJob{
		ID:          uuid.NewString(),
		Prefix:      prefix,
		Rules:       rules,
		PrefixBytes: []byte(prefix),
	}
}

// Result summarises a finished job
type Result struct {
	JobID    string
	Found    bool
	Address  string
	Attempts uint64
	Duration time.Duration
}

// MatchKind tells which check a candidate satisfied.
type MatchKind int

const (
	MatchPrefix MatchKind = iota + 1
	MatchRarity
)

func (k MatchKind) String() string {
	switch k {
	case MatchPrefix:
		return "prefix"
	case MatchRarity:
		return "rarity"
	default:
		return "unknown"
	}
}

// EventKind discriminates outbound protocol messages.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventFound    EventKind = "found"
	EventRare     EventKind = "rare"
)

// Event is one outbound message. Only the fields that belong to Kind are
// serialised.
type Event struct {
	Kind       EventKind
	TID        int
	Address    string
	PrivateKey string
	Pattern    string
	Attempts   uint64
}

// ProgressEvent reports attempts for worker tid (0 for the job total).
func ProgressEvent(tid int, attempts uint64) Event {
	return Event{Kind: EventProgress, TID: tid, Attempts: attempts}
}

// FoundEvent reports the terminal prefix match.
func FoundEvent(address, privateKey string, attempts uint64) Event {
	return Event{Kind: EventFound, Address: address, PrivateKey: privateKey, Attempts: attempts}
}

// RareEvent reports a rarity side find.
func RareEvent(address, privateKey, pattern string, attempts uint64) Event {
	return Event{Kind: EventRare, Address: address, PrivateKey: privateKey, Pattern: pattern, Attempts: attempts}
}

type progressWire struct {
	Type     EventKind `json:"type"`
	TID      int       `json:"tid"`
	Attempts uint64    `json:"attempts"`
}

type foundWire struct {
	Type       EventKind `json:"type"`
	Address    string    `json:"address"`
	PrivateKey string    `json:"private_key"`
	Attempts   uint64    `json:"attempts"`
}

type rareWire struct {
	Type       EventKind `json:"type"`
	Address    string    `json:"address"`
	PrivateKey string    `json:"private_key"`
	Pattern    string    `json:"pattern"`
	Attempts   uint64    `json:"attempts"`
}

// MarshalJSON implements json.Marshaler
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventProgress:
		return json.Marshal(progressWire{e.Kind, e.TID, e.Attempts})
	case EventFound:
		return json.Marshal(foundWire{e.Kind, e.Address, e.PrivateKey, e.Attempts})
	case EventRare:
		return json.Marshal(rareWire{e.Kind, e.Address, e.PrivateKey, e.Pattern, e.Attempts})
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
