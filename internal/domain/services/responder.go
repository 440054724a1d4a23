package services

import (
	"math/rand/v2"
	"sync"

	"honeypot-lab/internal/domain/models"
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

type globalPicker struct{}

func (globalPicker) IntN(n int) int { return rand.IntN(n) }

// lockedPicker serializes access to a picker that is not goroutine-safe
type lockedPicker struct {
	mu sync.Mutex
	p  Picker
}

func (l *lockedPicker) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.IntN(n)
}

// NewSeededPicker returns a deterministic goroutine-safe picker
func NewSeededPicker(seed uint64) Picker {
	return &lockedPicker{p: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// ResponseGenerator produces the persona's reply for a scam message
type ResponseGenerator struct {
	picker Picker
}

// NewResponseGenerator creates a generator. A nil picker uses the global random source.
func NewResponseGenerator(p Picker) *ResponseGenerator {
	if p == nil {
		p = globalPicker{}
	}
	return &ResponseGenerator{picker: p}
}

// GeneratedReply is a chosen reply with the stage that produced it
type GeneratedReply struct {
	Stage   models.Stage
	Text    string
	Signals ConversationSignals
}

// Generate returns nil when the message was not classified as a scam.
// messageCount is the number of stored messages before the current one and
// previous holds the scammer-authored texts among them.
func (g *ResponseGenerator) Generate(isScam bool, messageCount int, previous []string, current string) *GeneratedReply {
	if !isScam {
		return nil
	}

	signals := AnalyzeConversation(previous, current)
	stage := SelectStage(messageCount, signals)
	pool := CandidateReplies(stage, signals)

	return &GeneratedReply{
		Stage:   stage,
		Text:    pool[g.picker.IntN(len(pool))],
		Signals: signals,
	}
}
