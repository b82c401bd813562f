package actions

import (
	"fmt"
	"sync"
)

// Property is an animatable value on a stage object.
type Property string

const (
	PropPosition Property = "position"
	PropRotation Property = "rotation"
	PropScale    Property = "scale"
	PropAlpha    Property = "alpha"
	PropColor    Property = "color"
)

// Arity is the number of components in the property's value.
func (p Property) Arity() int {
	switch p {
	case PropPosition, PropScale:
		return 2
	case PropColor:
		return 4
	default:
		return 1
	}
}

// Default is the value of a property that was never set.
func (p Property) Default() []float64 {
	switch p {
	case PropPosition:
		return []float64{0, 0}
	case PropScale:
		return []float64{1, 1}
	case PropColor:
		return []float64{1, 1, 1, 1}
	case PropAlpha:
		return []float64{1}
	default:
		return []float64{0}
	}
}

// Stage is the presentation the built-in kinds act on.
type Stage interface {
	Get(target string, prop Property) []float64
	Set(target string, prop Property, value []float64)
	SetVisible(target string, visible bool)
	// Say presents a dialogue line; ack is called once the line has been read.
	Say(speaker, line string, ack func())
	Transition(state string) error
}

// Line is a dialogue line shown on a MemoryStage.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// MemoryStage is a Stage that keeps everything in memory.
type MemoryStage struct {
	mu          sync.Mutex
	props       map[string]map[Property][]float64
	visible     map[string]bool
	pending     []pendingLine
	transcript  []Line
	state       string
	transitions []string
	// States, when set, limits Transition to the listed states.
	States map[string]bool
}

type pendingLine struct {
	line Line
	ack  func()
}

// NewMemoryStage creates an empty stage.
func NewMemoryStage() *MemoryStage {
	return &MemoryStage{
		props:   make(map[string]map[Property][]float64),
		visible: make(map[string]bool),
	}
}

func (s *MemoryStage) Get(target string, prop Property) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.props[target][prop]; ok {
		return append([]float64{}, v...)
	}
	return prop.Default()
}

func (s *MemoryStage) Set(target string, prop Property, value []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.props[target] == nil {
		s.props[target] = make(map[Property][]float64)
	}
	s.props[target][prop] = append([]float64{}, value...)
}

func (s *MemoryStage) SetVisible(target string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[target] = visible
}

// Visible reports whether target is shown. Targets are visible until hidden.
func (s *MemoryStage) Visible(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visible[target]
	return !ok || v
}

func (s *MemoryStage) Say(speaker, line string, ack func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := Line{Speaker: speaker, Text: line}
	s.pending = append(s.pending, pendingLine{line: l, ack: ack})
	s.transcript = append(s.transcript, l)
}

// Acknowledge marks the oldest pending line as read. It returns false if no line is waiting.
// The line's ack runs without the stage lock held.
func (s *MemoryStage) Acknowledge() bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	p := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	if p.ack != nil {
		p.ack()
	}
	return true
}

// Pending returns the lines still waiting for acknowledgement.
func (s *MemoryStage) Pending() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.pending))
	for i, p := range s.pending {
		out[i] = p.line
	}
	return out
}

// Transcript returns every line said so far.
func (s *MemoryStage) Transcript() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line{}, s.transcript...)
}

func (s *MemoryStage) Transition(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.States != nil && !s.States[state] {
		return fmt.Errorf("unknown gameplay state %q", state)
	}
	s.state = state
	s.transitions = append(s.transitions, state)
	return nil
}

// State returns the last gameplay state transitioned to.
func (s *MemoryStage) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns every state transitioned to, in order.
func (s *MemoryStage) Transitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.transitions...)
}
