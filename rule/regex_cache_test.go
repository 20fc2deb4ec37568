package rule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRegexCachesCompiledPatterns(t *testing.T) {
	first, err := compileRegex(`^SF\d{6}$`)
	require.NoError(t, err)

	second, err := compileRegex(`^SF\d{6}$`)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCompileRegexRejectsInvalidPattern(t *testing.T) {
	_, err := compileRegex(`[unclosed`)
	assert.Error(t, err)
}

func TestValidateRegexComplexity(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "plain pattern", pattern: `^SF\d+$`},
		{name: "nested quantifier", pattern: `(a+)+b`, wantErr: true},
		{name: "nested star", pattern: `x(.*)*y`, wantErr: true},
		{name: "too long", pattern: strings.Repeat("a", 501), wantErr: true},
		{name: "too many groups", pattern: strings.Repeat("(a)", 21), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRegexComplexity(tt.pattern)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
