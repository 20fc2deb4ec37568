package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zakyip/sortengine/pkg/cache"
)

// globalRegexCache holds compiled regular expressions shared by all
// matchers. Rule snapshots compile at load time, but ad-hoc patterns
// from OCR and API-response conditions benefit from the cache too.
var globalRegexCache cache.Cache[*regexp.Regexp]

func init() {
	var err error
	globalRegexCache, err = cache.NewLRU[*regexp.Regexp](100)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize regex cache: %v", err))
	}
}

// compileRegex returns a cached compiled regex or compiles and caches a new one
func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, found := globalRegexCache.Get(pattern); found {
		return re, nil
	}

	if err := validateRegexComplexity(pattern); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}

	globalRegexCache.Set(pattern, re)
	return re, nil
}

// validateRegexComplexity rejects patterns likely to cause exponential
// backtracking. Heuristic, not exhaustive.
func validateRegexComplexity(pattern string) error {
	if len(pattern) > 500 {
		return fmt.Errorf("regex pattern too long (max 500 chars): %d chars", len(pattern))
	}

	dangerousFragments := []string{
		`(\w+)*`,
		`(\w*)+`,
		`(a+)+`,
		`(.*)*`,
		`(.+)+`,
		`(\s+)*`,
	}
	for _, fragment := range dangerousFragments {
		if strings.Contains(pattern, fragment) {
			return fmt.Errorf("regex pattern contains nested quantifiers that may cause exponential backtracking")
		}
	}

	if strings.Count(pattern, "(") > 20 {
		return fmt.Errorf("regex pattern has too many groups (max 20)")
	}

	return nil
}
