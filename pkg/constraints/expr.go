package constraints

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// exprEnv declares the variables a constraint's `when` expression can use.
var exprEnv = sync.OnceValues(func() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("branch", cel.StringType),
		cel.Variable("baseBranch", cel.StringType),
		cel.Variable("prNumber", cel.IntType),
		cel.Variable("changedFiles", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
})

func compileWhen(source string) (cel.Program, error) {
	env, err := exprEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("when expression compilation failed: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("when expression must evaluate to bool, got %s", t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program construction failed: %w", err)
	}
	return prg, nil
}

func evalWhen(prg cel.Program, ev Evaluation) (bool, error) {
	files := ev.ChangedFiles
	if files == nil {
		files = []string{}
	}
	out, _, err := prg.Eval(map[string]any{
		"branch":       ev.Branch,
		"baseBranch":   ev.BaseBranch,
		"prNumber":     int64(ev.PRNumber),
		"changedFiles": files,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("when expression returned %T", out.Value())
	}
	return b, nil
}
