// Package callgraph predicts which dynamic fields a transaction's Move
// calls will transitively touch, so a caller can prefetch them into the
// Object Store before execution instead of discovering the need one native
// callback at a time.
//
// The approach: build a call graph from the loaded modules, mark
// dynamic_field::* / dynamic_object_field::* functions as sinks, propagate
// "reaches a sink" backwards through callers by BFS, and resolve the sink's
// key/value type pattern against a concrete call's type arguments. Built
// around a small extractor interface (mirroring core/resolver's bytecode
// inspector) instead of a real Move bytecode deserializer, since no such
// deserializer is in scope for this module.
package callgraph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// FunctionKey identifies one Move function.
type FunctionKey struct {
	Package  movetypes.AccountAddress
	Module   string
	Function string
}

func (k FunctionKey) String() string {
	return fmt.Sprintf("%s::%s::%s", k.Package.Hex(), k.Module, k.Function)
}

// IsFramework reports whether k names a function in one of the bundled
// framework packages (movetypes.IsFrameworkPackage: 0x1, 0x2, 0x3, 0x5, 0x6,
// 0x8, 0xdee9).
func (k FunctionKey) IsFramework() bool { return movetypes.IsFrameworkPackage(k.Package) }

// AccessKind is the kind of dynamic-field operation a sink function performs.
type AccessKind int

const (
	AccessBorrow AccessKind = iota
	AccessBorrowMut
	AccessAdd
	AccessRemove
	AccessExists
	AccessFieldInfo
)

func (k AccessKind) IsMutating() bool { return k == AccessBorrowMut || k == AccessAdd || k == AccessRemove }

func (k AccessKind) String() string {
	switch k {
	case AccessBorrow:
		return "borrow"
	case AccessBorrowMut:
		return "borrow_mut"
	case AccessAdd:
		return "add"
	case AccessRemove:
		return "remove"
	case AccessExists:
		return "exists"
	case AccessFieldInfo:
		return "field_info"
	default:
		return "unknown"
	}
}

// typeParamResolution is how one of a callee's type parameters maps back to
// the caller: either a concrete type string, or one of the caller's own type
// parameters by index.
type typeParamResolution struct {
	Concrete    string `json:"concrete,omitempty"`
	CallerIndex *int   `json:"caller_index,omitempty"`
}

func (r typeParamResolution) isCallerParam() bool { return r.CallerIndex != nil }

// CallEdge is one call site inside a function's body.
type CallEdge struct {
	Callee   FunctionKey
	TypeArgs []typeParamResolution
}

// jsonCallEdge is the JSON wire shape for one CallEdge, keyed by fully
// qualified callee name rather than a nested FunctionKey, matching the
// fixture encoding JSONCallExtractor reads.
type jsonCallEdge struct {
	CalleePackage  string   `json:"callee_package"`
	CalleeModule   string   `json:"callee_module"`
	CalleeFunction string   `json:"callee_function"`
	TypeArgs       []string `json:"type_args"` // "T0", "T1", ... or a concrete type string
}

// jsonModuleCalls is the fixture encoding of one module's call sites: a map
// from function name to the call edges that function's body contains.
type jsonModuleCalls map[string][]jsonCallEdge

// CallExtractor extracts, for every function defined in a module's bytecode,
// the call edges its body contains.
type CallExtractor interface {
	ExtractCalls(bytecode []byte) (map[string][]CallEdge, error)
}

// JSONCallExtractor treats Module.Bytecode as a JSON encoding of
// jsonModuleCalls. Like resolver.JSONBytecodeInspector, this is the in-repo
// fixture format, not a real Move bytecode format; production callers wire
// in a real extractor that walks a decoded CompiledModule's instruction
// stream the way the original call graph builder does.
type JSONCallExtractor struct{}

func (JSONCallExtractor) ExtractCalls(bytecode []byte) (map[string][]CallEdge, error) {
	if len(bytecode) == 0 {
		return nil, nil
	}
	var raw jsonModuleCalls
	if err := json.Unmarshal(bytecode, &raw); err != nil {
		return nil, errors.Wrap(err, "callgraph: extract call edges")
	}
	out := make(map[string][]CallEdge, len(raw))
	for fn, edges := range raw {
		converted := make([]CallEdge, 0, len(edges))
		for _, e := range edges {
			edge := CallEdge{
				Callee: FunctionKey{
					Package:  movetypes.HexToAddress(e.CalleePackage),
					Module:   e.CalleeModule,
					Function: e.CalleeFunction,
				},
			}
			for _, t := range e.TypeArgs {
				edge.TypeArgs = append(edge.TypeArgs, parseTypeParam(t))
			}
			converted = append(converted, edge)
		}
		out[fn] = converted
	}
	return out, nil
}

func parseTypeParam(s string) typeParamResolution {
	if strings.HasPrefix(s, "T") {
		if idx, err := strconv.Atoi(s[1:]); err == nil {
			return typeParamResolution{CallerIndex: &idx}
		}
	}
	return typeParamResolution{Concrete: s}
}

// sinkInfo records that a framework function is a known dynamic_field (or
// dynamic_object_field) entry point.
type sinkInfo struct {
	kind          AccessKind
	keyTypeIndex  int
	valueTypeIndex int
}

var knownSinks = map[string]sinkInfo{
	"borrow_child_object":         {AccessBorrow, 0, 1},
	"borrow":                      {AccessBorrow, 0, 1},
	"borrow_child_object_mut":     {AccessBorrowMut, 0, 1},
	"borrow_mut":                  {AccessBorrowMut, 0, 1},
	"add_child_object":            {AccessAdd, 0, 1},
	"add":                         {AccessAdd, 0, 1},
	"remove_child_object":         {AccessRemove, 0, 1},
	"remove":                      {AccessRemove, 0, 1},
	"has_child_object":            {AccessExists, 0, 1},
	"has_child_object_with_ty":    {AccessExists, 0, 1},
	"exists_":                     {AccessExists, 0, 1},
	"exists_with_type":            {AccessExists, 0, 1},
	"field_info":                  {AccessFieldInfo, 0, 1},
	"field_info_mut":              {AccessFieldInfo, 0, 1},
}

func sinkFor(k FunctionKey) (sinkInfo, bool) {
	if !k.IsFramework() {
		return sinkInfo{}, false
	}
	if k.Module != "dynamic_field" && k.Module != "dynamic_object_field" {
		return sinkInfo{}, false
	}
	s, ok := knownSinks[k.Function]
	return s, ok
}

// sinkPath is one route from a function to a dynamic_field sink, with the
// sink's key/value type pattern expressed in terms of the ORIGINAL caller's
// type parameters.
type sinkPath struct {
	sink        FunctionKey
	accessKind  AccessKind
	keyPattern  string
	valuePattern string
	depth       int
}

// Graph is the call graph: forward/reverse call edges plus, after
// Propagate, the set of functions that transitively reach a dynamic_field
// sink.
type Graph struct {
	extractor  CallExtractor
	calls      map[FunctionKey][]CallEdge
	callers    map[FunctionKey][]FunctionKey
	sinks      map[FunctionKey]sinkInfo
	transitive map[FunctionKey][]sinkPath
	modules    int
}

// New constructs an empty Graph. extractor may be nil to use JSONCallExtractor.
func New(extractor CallExtractor) *Graph {
	if extractor == nil {
		extractor = JSONCallExtractor{}
	}
	return &Graph{
		extractor:  extractor,
		calls:      make(map[FunctionKey][]CallEdge),
		callers:    make(map[FunctionKey][]FunctionKey),
		sinks:      make(map[FunctionKey]sinkInfo),
		transitive: make(map[FunctionKey][]sinkPath),
	}
}

// LoadPackage extracts call edges from every module in pkg and adds them to
// the graph, keyed by pkg's declared (original) address.
func (g *Graph) LoadPackage(pkg *movetypes.Package) error {
	for _, mod := range pkg.Modules {
		calls, err := g.extractor.ExtractCalls(mod.Bytecode)
		if err != nil {
			return errors.Wrapf(err, "callgraph: load %s::%s", pkg.OriginalID.Hex(), mod.Name)
		}
		for fn, edges := range calls {
			caller := FunctionKey{Package: pkg.OriginalID, Module: mod.Name, Function: fn}
			g.calls[caller] = append(g.calls[caller], edges...)
			for _, e := range edges {
				g.callers[e.Callee] = append(g.callers[e.Callee], caller)
				if info, ok := sinkFor(e.Callee); ok {
					g.sinks[e.Callee] = info
				}
			}
		}
		g.modules++
	}
	return nil
}

// Propagate runs the backwards BFS from every known sink, populating the set
// of functions that transitively reach one. Call once after every package of
// interest has been loaded.
func (g *Graph) Propagate() {
	const maxDepth = 10
	type queued struct {
		fn   FunctionKey
		path sinkPath
	}
	var queue []queued

	for sink, info := range g.sinks {
		path := sinkPath{
			sink:         sink,
			accessKind:   info.kind,
			keyPattern:   fmt.Sprintf("T%d", info.keyTypeIndex),
			valuePattern: fmt.Sprintf("T%d", info.valueTypeIndex),
			depth:        0,
		}
		g.transitive[sink] = append(g.transitive[sink], path)
		for _, caller := range g.callers[sink] {
			next := sinkPath{sink: path.sink, accessKind: path.accessKind, keyPattern: path.keyPattern, valuePattern: path.valuePattern, depth: 1}
			if edge := findEdge(g.calls[caller], sink, g.callers, caller); edge != nil {
				next.keyPattern = remapPattern(next.keyPattern, edge.TypeArgs)
				next.valuePattern = remapPattern(next.valuePattern, edge.TypeArgs)
			}
			queue = append(queue, queued{fn: caller, path: next})
		}
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.path.depth > maxDepth {
			continue
		}
		if dominated(g.transitive[item.fn], item.path) {
			continue
		}
		g.transitive[item.fn] = append(g.transitive[item.fn], item.path)

		for _, caller := range g.callers[item.fn] {
			next := item.path
			next.depth++
			if edge := findEdge(g.calls[caller], item.fn, g.callers, caller); edge != nil {
				next.keyPattern = remapPattern(next.keyPattern, edge.TypeArgs)
				next.valuePattern = remapPattern(next.valuePattern, edge.TypeArgs)
			}
			queue = append(queue, queued{fn: caller, path: next})
		}
	}
}

func dominated(existing []sinkPath, candidate sinkPath) bool {
	for _, p := range existing {
		if p.sink == candidate.sink && p.depth <= candidate.depth {
			return true
		}
	}
	return false
}

// findEdge locates the CallEdge within fn's own call list whose Callee is
// target (the function a sink path is being propagated up from), so the
// path's type patterns can be rewritten in terms of fn's own type
// parameters. If no edge names target directly, it falls back to the first
// edge whose callee has fn registered as a caller. Only the first matching
// call site is used, which is sufficient for the common case of a single
// call site per wrapper.
func findEdge(edges []CallEdge, target FunctionKey, callers map[FunctionKey][]FunctionKey, fn FunctionKey) *CallEdge {
	for i := range edges {
		if edges[i].Callee == target {
			return &edges[i]
		}
	}
	for i := range edges {
		if containsCaller(callers[edges[i].Callee], fn) {
			return &edges[i]
		}
	}
	return nil
}

func containsCaller(callers []FunctionKey, fn FunctionKey) bool {
	for _, c := range callers {
		if c == fn {
			return true
		}
	}
	return false
}

func remapPattern(pattern string, typeArgs []typeParamResolution) string {
	result := pattern
	for i := len(typeArgs) - 1; i >= 0; i-- {
		placeholder := fmt.Sprintf("T%d", i)
		var replacement string
		if typeArgs[i].isCallerParam() {
			replacement = fmt.Sprintf("T%d", *typeArgs[i].CallerIndex)
		} else {
			replacement = typeArgs[i].Concrete
		}
		result = strings.ReplaceAll(result, placeholder, replacement)
	}
	return result
}

// ResolvedAccess is one predicted dynamic-field access, with type patterns
// resolved against a concrete call's type arguments.
type ResolvedAccess struct {
	KeyType    string
	ValueType  string
	Access     AccessKind
	Confidence Confidence
	SinkDepth  int
}

// Confidence is how certain a ResolvedAccess's resolved types are.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// PredictAccesses reports the dynamic fields a call to
// package::module::function(typeArgs...) is predicted to touch, transitively
// through any wrapper functions it calls.
func (g *Graph) PredictAccesses(pkg movetypes.AccountAddress, module, function string, typeArgs []string) []ResolvedAccess {
	key := FunctionKey{Package: pkg, Module: module, Function: function}
	paths, ok := g.transitive[key]
	if !ok {
		return nil
	}
	byKey := make(map[string]ResolvedAccess)
	for _, p := range paths {
		keyType := resolvePattern(p.keyPattern, typeArgs)
		valueType := resolvePattern(p.valuePattern, typeArgs)
		confidence := ConfidenceHigh
		if hasUnresolvedParam(keyType) {
			confidence = ConfidenceMedium
		}
		access := ResolvedAccess{KeyType: keyType, ValueType: valueType, Access: p.accessKind, Confidence: confidence, SinkDepth: p.depth}
		if existing, ok := byKey[keyType]; !ok || existing.Confidence < access.Confidence {
			byKey[keyType] = access
		}
	}
	out := make([]ResolvedAccess, 0, len(byKey))
	for _, a := range byKey {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b ResolvedAccess) int { return strings.Compare(a.KeyType, b.KeyType) })
	return out
}

func resolvePattern(pattern string, typeArgs []string) string {
	result := pattern
	for i := len(typeArgs) - 1; i >= 0; i-- {
		result = strings.ReplaceAll(result, fmt.Sprintf("T%d", i), typeArgs[i])
	}
	return result
}

func hasUnresolvedParam(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == 'T' && s[i+1] >= '0' && s[i+1] <= '9' {
			return true
		}
	}
	return false
}

// Stats summarizes the graph's size, for logging.
type Stats struct {
	ModulesLoaded           int
	FunctionsTracked        int
	CallEdges               int
	DirectSinks             int
	TransitiveSinkFunctions int
}

func (g *Graph) Stats() Stats {
	edges := 0
	for _, e := range g.calls {
		edges += len(e)
	}
	return Stats{
		ModulesLoaded:           g.modules,
		FunctionsTracked:        len(g.calls),
		CallEdges:               edges,
		DirectSinks:             len(g.sinks),
		TransitiveSinkFunctions: len(g.transitive),
	}
}
