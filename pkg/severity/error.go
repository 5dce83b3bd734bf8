package severity

import "github.com/pkg/errors"

// errors
var (
	ErrUnknownSeverity = errors.New("unknown severity")
	ErrEmptyRuleSet    = errors.New("rule set is empty")
	ErrNormalRule      = errors.New("rule cannot assign normal severity")
	ErrEmptyPattern    = errors.New("rule pattern is empty")
	ErrNoPatterns      = errors.New("rule has no patterns")
	ErrEmptyRulePath   = errors.New("rule file path is empty")
)
