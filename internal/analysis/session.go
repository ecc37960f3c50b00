// Package analysis holds the decompiler's global state and drives it: the
// signal queue, function definition and the discovery of new functions.
package analysis

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/oklog/ulid/v2"

	"ouroboros/internal/ast"
	"ouroboros/internal/cfg"
	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
	"ouroboros/internal/loader"
	"ouroboros/internal/logging"
	"ouroboros/internal/memory"
	"ouroboros/internal/semantics"
	"ouroboros/internal/structure"
	"ouroboros/internal/symbols"
)

// ErrNoFunction is returned when an address names no defined function.
var ErrNoFunction = errors.New("no function at address")

// Options bounds the work of a session.
type Options struct {
	MaxFrames             int
	MaxDecodeInstructions int
	DiscoverPointers      bool
	ParamRegisters        []string
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxFrames:             DefaultMaxFrames,
		MaxDecodeInstructions: DefaultMaxDecodeInstructions,
		DiscoverPointers:      true,
		ParamRegisters:        slices.Clone(DefaultParamRegisters),
	}
}

// Function is everything the session knows about one defined function.
type Function struct {
	High  *cfg.HighFunction
	AST   *ast.Function
	Scope *symbols.Scope
	Stats structure.Stats
}

// FunctionInfo is one row of the navigation list.
type FunctionInfo struct {
	Entry ir.Address
	Name  string
	Span  ir.Interval
	// Ranges are the runs the function owns in the navigation index.
	Ranges []ir.Interval
	Blocks int
	Stats  structure.Stats
}

// Session is the decompiler's global state. It is not safe for concurrent
// use; the presentation layer talks to it through signals between frames.
type Session struct {
	ID      ulid.ULID
	Arch    string
	Space   *memory.Space
	IR      *lift.Store
	Symbols *symbols.Table
	Signals *Signals

	oracle    semantics.Oracle
	conv      semantics.Convention
	functions map[ir.Address]*Function
	// failed holds entries whose definition could not complete. Discovery
	// does not propose them again.
	failed    map[ir.Address]error
	badMarks  map[ir.Address]bool
	current   ir.Address
	hasCur    bool
	frames    int
	notes     []Signal
	discovery *DiscoveryChain
	opts      Options
	log       *logging.LoggerCloser
	binary    *loader.Binary
}

// New returns an empty session for the architecture arch.
func New(arch string, opts Options, lg *logging.LoggerCloser) (*Session, error) {
	oracle, err := semantics.ForArch(arch)
	if err != nil {
		return nil, err
	}
	if lg == nil {
		lg = logging.Discard()
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}
	conv := oracle.Convention()
	s := &Session{
		ID:        ulid.Make(),
		Arch:      arch,
		Space:     memory.NewSpace(),
		IR:        lift.NewStore(conv.WordSize),
		Symbols:   symbols.NewTable(),
		Signals:   &Signals{},
		oracle:    oracle,
		conv:      conv,
		functions: make(map[ir.Address]*Function),
		failed:    make(map[ir.Address]error),
		badMarks:  make(map[ir.Address]bool),
		opts:      opts,
	}
	s.log = lg.With("session", s.ID.String())

	ds := []Discoverer{CallTargets{}, TailTargets{}}
	if opts.DiscoverPointers {
		ds = append(ds, ParamPointers{Registers: opts.ParamRegisters})
	}
	s.discovery = NewDiscoveryChain(ds...)
	return s, nil
}

// Open loads the executable at path into a new session. The binary stays
// open until Close.
func Open(path string, opts Options, lg *logging.LoggerCloser) (*Session, error) {
	b, err := loader.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := New(b.Arch, opts, lg)
	if err != nil {
		b.Close()
		return nil, err
	}
	if err := s.Load(b); err != nil {
		b.Close()
		return nil, err
	}
	s.binary = b
	return s, nil
}

// Close releases the binary behind the session, if the session opened it.
func (s *Session) Close() error {
	if s.binary == nil {
		return nil
	}
	err := s.binary.Close()
	s.binary = nil
	return err
}

// Load adds the sections and symbols of b and queues its entry points. A
// section overlapping one already loaded is skipped.
func (s *Session) Load(b *loader.Binary) error {
	for _, sec := range b.Sections {
		err := s.Space.AddSection(sec.Name, sec.Base, sec.Data, sec.Exec)
		if errors.Is(err, memory.ErrOverlap) {
			s.log.Warn("skipping overlapping section", "name", sec.Name, "base", sec.Base, "err", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("load section %s: %w", sec.Name, err)
		}
	}
	for _, sym := range b.Symbols {
		s.Symbols.Insert(symbols.Symbol{
			Addr: sym.Addr,
			Size: sym.Size,
			Name: s.Symbols.Demangle(sym.Name),
			Kind: sym.Kind,
		})
	}
	for _, e := range b.Entries {
		s.Signals.DefineFunction(e)
	}
	s.Signals.NewOpenFile()
	s.log.Info("loaded", "format", b.Format, "arch", b.Arch, "sections", len(b.Sections), "symbols", len(b.Symbols), "entries", len(b.Entries))
	return nil
}

// Frame runs one frame: every current signal in order, then discovery. It
// reports whether any signal was processed.
func (s *Session) Frame() bool {
	sigs := s.Signals.NewFrame()
	if len(sigs) == 0 {
		return false
	}
	s.frames++
	repopulate := false
	for _, sig := range sigs {
		s.log.Debug("signal", "frame", s.frames, "kind", sig.Kind, "addr", sig.Addr)
		switch sig.Kind {
		case DefineFunctionStart:
			repopulate = s.defineFunction(sig.Addr) || repopulate
		case MarkInstruction:
			repopulate = s.markInstruction(sig.Addr) || repopulate
		case RenameSymbol:
			if err := s.rename(sig.From, sig.To); err != nil {
				s.log.Warn("rename", "from", sig.From, "to", sig.To, "err", err)
			}
		case RequestPos:
			s.requestPos(sig.Addr)
		case NewOpenFile, RepopulateInstructionRows:
			s.notes = append(s.notes, sig)
		}
	}

	for _, c := range s.discovery.Discover(s) {
		s.log.Info("discovered", "addr", c.Addr, "from", c.From, "reason", c.Reason)
		s.Signals.DefineFunction(c.Addr)
	}
	if repopulate {
		s.Signals.RepopulateInstructionRows()
	}
	return true
}

// Drain runs frames until the queue is empty or MaxFrames frames ran, and
// returns the number of frames.
func (s *Session) Drain() int {
	n := 0
	for n < s.opts.MaxFrames && s.Frame() {
		n++
	}
	if !s.Signals.Empty() {
		s.log.Warn("frame budget exhausted", "frames", n, "pending", len(s.Signals.Pending()))
	}
	return n
}

// Notifications returns the presentation signals processed since the last
// call.
func (s *Session) Notifications() []Signal {
	out := s.notes
	s.notes = nil
	return out
}

func (s *Session) decode(code []byte, start ir.Address) ([]semantics.Instruction, error) {
	return lift.Decode(code, start, s.oracle, s.opts.MaxDecodeInstructions)
}

// markInstruction decodes the Data literal at a and merges the result into
// the IR store. It reports whether anything was decoded.
func (s *Session) markInstruction(a ir.Address) bool {
	if s.IR.Has(a) || s.badMarks[a] {
		return false
	}
	iv, instrs, err := s.Space.MarkInstructions(a, s.decode)
	if err != nil {
		s.badMarks[a] = true
		s.log.Warn("mark instructions", "addr", a, "err", err)
		return false
	}
	s.IR.Merge(instrs)
	s.log.Debug("marked", "range", iv, "instructions", len(instrs))
	return true
}

// other reports addresses owned by a defined function other than self.
func (s *Session) other(self ir.Address) func(ir.Address) bool {
	return func(a ir.Address) bool {
		_, ok := s.functions[a]
		return ok && a != self
	}
}

func (s *Session) isImport(a ir.Address) bool {
	sym, ok := s.Symbols.Resolve(a)
	return ok && sym.Kind == symbols.KindImport
}

// tailCall reports jumps that leave the function: into an import stub or
// into a different section than the jump itself.
func (s *Session) tailCall(from, to ir.Address) bool {
	return s.isImport(to) || s.sectionOf(from) != s.sectionOf(to)
}

func (s *Session) sectionOf(a ir.Address) int {
	for i, sec := range s.Space.Sections() {
		if ir.Span(sec.Base, sec.Size).Contains(a) {
			return i
		}
	}
	return -1
}

// defineFunction builds, structures and scopes the function at f and makes
// it current. It reports whether new instructions were decoded.
func (s *Session) defineFunction(f ir.Address) bool {
	if _, bad := s.failed[f]; bad {
		return false
	}
	decoded := false
	if !s.IR.Has(f) {
		decoded = s.markInstruction(f)
		if !s.IR.Has(f) {
			s.failed[f] = fmt.Errorf("define %s: no instructions", f)
			return decoded
		}
	}

	opts := cfg.Options{Stop: s.other(f), TailCall: s.tailCall, Convention: s.conv}
	hf, err := cfg.Build(f, s.IR, opts)
	for i := 0; err == nil && i < s.opts.MaxFrames && len(hf.Unresolved) > 0; i++ {
		progress := false
		for _, t := range hf.Unresolved {
			progress = s.markInstruction(t) || progress
		}
		if !progress {
			break
		}
		decoded = true
		hf, err = cfg.Build(f, s.IR, opts)
	}
	if err != nil {
		s.failed[f] = err
		s.log.Error("build", "addr", f, "err", err)
		return decoded
	}

	if err := hf.TakeIntervalOwnership(s.Space); err != nil {
		s.failed[f] = err
		s.log.Error("take ownership", "addr", f, "span", hf.Span, "err", err)
		return decoded
	}
	hf.FillGlobalSymbols(s.Symbols)

	fn, stats, err := structure.StructureStats(hf)
	if err != nil {
		if _, ok := s.functions[f]; !ok {
			s.Space.ReleaseSpan(f)
		}
		s.failed[f] = err
		s.log.Error("structure", "addr", f, "err", err)
		return decoded
	}
	if stats.Gotos > 0 || stats.Residue > 0 {
		s.log.Debug("residue", "addr", f, "stats", stats)
	}
	s.functions[f] = &Function{
		High:  hf,
		AST:   fn,
		Scope: symbols.BuildScope(fn, s.conv),
		Stats: stats,
	}
	s.current, s.hasCur = f, true
	return decoded
}

// rename resolves from against the global table, by name or by hex address,
// and then against the current function's variables.
func (s *Session) rename(from, to string) error {
	if sym, ok := s.Symbols.Lookup(from); ok {
		s.Symbols.Rename(sym.Addr, to)
		return nil
	}
	if v, err := strconv.ParseUint(from, 0, 64); err == nil {
		if sym := s.Symbols.ResolveMut(ir.Address(v)); sym != nil {
			s.Symbols.Rename(sym.Addr, to)
			return nil
		}
	}
	if fn, ok := s.Current(); ok {
		if slot, ok := fn.Scope.Lookup(from); ok {
			fn.Scope.Rename(slot, to)
			return nil
		}
	}
	return fmt.Errorf("rename %q: %w", from, symbols.ErrUnknownSymbol)
}

func (s *Session) requestPos(a ir.Address) {
	if _, ok := s.functions[a]; ok {
		s.current, s.hasCur = a, true
	}
}

// known reports entries that are defined or whose definition failed.
func (s *Session) known(a ir.Address) bool {
	if _, ok := s.functions[a]; ok {
		return true
	}
	_, bad := s.failed[a]
	return bad
}

// Function returns the defined function at entry.
func (s *Session) Function(entry ir.Address) (*Function, bool) {
	fn, ok := s.functions[entry]
	return fn, ok
}

// Lookup finds a defined function by symbol name or hex address.
func (s *Session) Lookup(ref string) (*Function, error) {
	if sym, ok := s.Symbols.Lookup(ref); ok {
		if fn, ok := s.functions[sym.Addr]; ok {
			return fn, nil
		}
	}
	if v, err := strconv.ParseUint(ref, 0, 64); err == nil {
		if fn, ok := s.functions[ir.Address(v)]; ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ref, ErrNoFunction)
}

// Current returns the function the presentation layer shows.
func (s *Session) Current() (*Function, bool) {
	if !s.hasCur {
		return nil, false
	}
	return s.Function(s.current)
}

// Failed returns the entries whose definition failed and why.
func (s *Session) Failed() map[ir.Address]error {
	return s.failed
}

func (s *Session) Convention() semantics.Convention { return s.conv }

// Frames returns the number of frames run so far.
func (s *Session) Frames() int { return s.frames }

// Functions returns the navigation list in address order.
func (s *Session) Functions() []FunctionInfo {
	out := make([]FunctionInfo, 0, len(s.functions))
	for entry, fn := range s.functions {
		ranges, _ := s.Space.SpanOf(entry)
		out = append(out, FunctionInfo{
			Entry:  entry,
			Name:   s.Symbols.Name(entry),
			Span:   fn.High.Span,
			Ranges: ranges,
			Blocks: fn.High.Blocks.Len(),
			Stats:  fn.Stats,
		})
	}
	slices.SortFunc(out, func(a, b FunctionInfo) int { return compareAddr(a.Entry, b.Entry) })
	return out
}
