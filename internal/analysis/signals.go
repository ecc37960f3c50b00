package analysis

import (
	"fmt"

	"ouroboros/internal/ir"
)

// SignalKind is the request a signal carries.
type SignalKind uint8

const (
	// DefineFunctionStart lifts, assembles and structures the function at
	// Addr.
	DefineFunctionStart SignalKind = iota
	// MarkInstruction decodes the Data literal at Addr.
	MarkInstruction
	// RenameSymbol renames a global symbol or a variable of the current
	// function.
	RenameSymbol
	// RequestPos makes the function at Addr current.
	RequestPos
	// NewOpenFile and RepopulateInstructionRows are notifications for the
	// presentation layer. The core emits them and otherwise ignores them.
	NewOpenFile
	RepopulateInstructionRows
)

var signalKinds = [...]string{
	DefineFunctionStart:       "define-function-start",
	MarkInstruction:           "mark-instruction",
	RenameSymbol:              "rename-symbol",
	RequestPos:                "request-pos",
	NewOpenFile:               "new-open-file",
	RepopulateInstructionRows: "repopulate-instruction-rows",
}

func (k SignalKind) String() string {
	if int(k) < len(signalKinds) {
		return signalKinds[k]
	}
	return fmt.Sprintf("SignalKind<%d>", k)
}

// Signal is one queued request.
type Signal struct {
	Kind SignalKind
	Addr ir.Address
	// From names the symbol to rename: a global name, a hex address or a
	// variable of the current function.
	From string
	To   string
}

func (s Signal) String() string {
	switch s.Kind {
	case RenameSymbol:
		return fmt.Sprintf("%s %s -> %s", s.Kind, s.From, s.To)
	case NewOpenFile, RepopulateInstructionRows:
		return s.Kind.String()
	}
	return fmt.Sprintf("%s %s", s.Kind, s.Addr)
}

// Signals is the analysis work queue. Pushed signals wait in pending until
// NewFrame promotes them; signals pushed while a frame runs land in the next
// frame.
type Signals struct {
	pending []Signal
	current []Signal
}

// Push enqueues sig unless an identical signal is already pending.
func (q *Signals) Push(sig Signal) {
	for _, p := range q.pending {
		if p == sig {
			return
		}
	}
	q.pending = append(q.pending, sig)
}

func (q *Signals) DefineFunction(a ir.Address) { q.Push(Signal{Kind: DefineFunctionStart, Addr: a}) }

func (q *Signals) MarkInstruction(a ir.Address) { q.Push(Signal{Kind: MarkInstruction, Addr: a}) }

func (q *Signals) RequestPos(a ir.Address) { q.Push(Signal{Kind: RequestPos, Addr: a}) }

func (q *Signals) Rename(from, to string) { q.Push(Signal{Kind: RenameSymbol, From: from, To: to}) }

func (q *Signals) NewOpenFile() { q.Push(Signal{Kind: NewOpenFile}) }

func (q *Signals) RepopulateInstructionRows() { q.Push(Signal{Kind: RepopulateInstructionRows}) }

// NewFrame makes the pending signals current and returns them.
func (q *Signals) NewFrame() []Signal {
	q.current, q.pending = q.pending, nil
	return q.current
}

// Current returns the signals of the running frame.
func (q *Signals) Current() []Signal { return q.current }

// Pending returns the signals waiting for the next frame.
func (q *Signals) Pending() []Signal { return q.pending }

func (q *Signals) Empty() bool { return len(q.pending) == 0 }
