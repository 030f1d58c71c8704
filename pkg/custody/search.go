package custody

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
	"github.com/google/cel-go/cel"
)

// searcher evaluates CEL filter expressions over evidence snapshots. The
// snapshot is exposed as the map variable `evidence` with its JSON field
// names, e.g. `evidence.status == "ARCHIVED" && "drugs" in evidence.tags`.
type searcher struct {
	once    sync.Once
	env     *cel.Env
	initErr error

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

func (s *searcher) init() error {
	s.once.Do(func() {
		s.env, s.initErr = cel.NewEnv(
			cel.Variable("evidence", cel.MapType(cel.StringType, cel.DynType)),
		)
		s.prgCache = make(map[string]cel.Program)
	})
	return s.initErr
}

func (s *searcher) program(expr string) (cel.Program, error) {
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	s.mu.RLock()
	prg, hit := s.prgCache[expr]
	s.mu.RUnlock()
	if hit {
		return prg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prg, hit = s.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &ValidationError{Field: "query", Reason: issues.Err().Error()}
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, &ValidationError{Field: "query", Reason: "expression must evaluate to bool, got " + ast.OutputType().String()}
	}
	p, err := s.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	s.prgCache[expr] = p
	return p, nil
}

// match reports whether ev satisfies prg.
func match(prg cel.Program, ev *contracts.Evidence) (bool, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return false, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, err
	}
	if m["tags"] == nil {
		m["tags"] = []any{}
	}
	out, _, err := prg.Eval(map[string]any{"evidence": m})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
