package pipeline

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

const exprPrefix = "="

// evalParam resolves a parameter value from the definition file. String
// values starting with "=" are expressions evaluated at parse time, so
// derived constants can be written as arithmetic instead of pre-computed
// literals (e.g. "= 2.0 - 2.0/28"). Everything else passes through as-is.
func evalParam(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, exprPrefix) {
		return value, nil
	}

	code := strings.TrimSpace(strings.TrimPrefix(s, exprPrefix))
	if code == "" {
		return nil, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(code)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", code, err)
	}
	result, err := expr.Run(program, nil)
	if err != nil {
		return nil, fmt.Errorf("expression %q failed: %w", code, err)
	}
	return result, nil
}
