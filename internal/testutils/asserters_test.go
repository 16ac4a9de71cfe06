package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// captureT records Errorf calls instead of failing the test
type captureT struct {
	errors []string
}

func (c *captureT) Errorf(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	t.Run("trailing whitespace and surrounding blank lines ignored by default", func(t *testing.T) {
		ct := &captureT{}
		NewTextAsserter(ct).Assert("\nrates: 60, 250  \ncalibrations: 1, 5, 9\n\n", "rates: 60, 250\ncalibrations: 1, 5, 9")
		assert.Empty(t, ct.errors)
	})

	t.Run("difference reported as unified diff", func(t *testing.T) {
		ct := &captureT{}
		NewTextAsserter(ct).Assert("rates: 60\n", "rates: 60, 250\n")

		if assert.Len(t, ct.errors, 1) {
			assert.Contains(t, ct.errors[0], "--- expected")
			assert.Contains(t, ct.errors[0], "+rates: 60")
			assert.Contains(t, ct.errors[0], "-rates: 60, 250")
		}
	})

	t.Run("empty lines", func(t *testing.T) {
		ct := &captureT{}
		NewTextAsserter(ct).WithOptions(WithIgnoreEmptyLines(true)).Assert("a\n\n\nb", "a\nb")
		assert.Empty(t, ct.errors)

		ct = &captureT{}
		NewTextAsserter(ct).Assert("a\n\nb", "a\nb")
		assert.Len(t, ct.errors, 1, "blank lines MUST count unless ignored")
	})

	t.Run("colors", func(t *testing.T) {
		ta := NewTextAsserter(&captureT{}).WithOptions(WithEnableColors(true))
		diff := ta.diff("a b", "a c")
		assert.Contains(t, diff, "\x1b[", "coloured diff MUST contain ANSI escapes")
		assert.Contains(t, diff, "a·b", "spaces MUST be visible")
	})
}

func TestJSONAsserter(t *testing.T) {
	t.Run("extra keys ignored by default", func(t *testing.T) {
		ct := &captureT{}
		NewJSONAsserter(ct).Assert(`{"name":"EyeLogic","uid":"x","channel_count":17}`, `{"name":"EyeLogic","channel_count":17}`)
		assert.Empty(t, ct.errors)
	})

	t.Run("extra keys reported when strict", func(t *testing.T) {
		ct := &captureT{}
		NewJSONAsserter(ct).WithOptions(WithIgnoreExtraKeys(false)).Assert(`{"a":1,"b":2}`, `{"a":1}`)
		assert.Len(t, ct.errors, 1)
	})

	t.Run("ignored fields at any depth", func(t *testing.T) {
		ct := &captureT{}
		NewJSONAsserter(ct).WithOptions(WithIgnoreExtraKeys(false), WithIgnoredFields("uid")).
			Assert(`{"uid":"1","nested":[{"uid":"2","v":1}]}`, `{"uid":"3","nested":[{"uid":"4","v":1}]}`)
		assert.Empty(t, ct.errors)
	})

	t.Run("value mismatch", func(t *testing.T) {
		ct := &captureT{}
		NewJSONAsserter(ct).AssertValue(map[string]int{"rate": 60}, `{"rate":250}`)
		if assert.Len(t, ct.errors, 1) {
			assert.Contains(t, ct.errors[0], "rate")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		ct := &captureT{}
		NewJSONAsserter(ct).Assert(`not json`, `{}`)
		if assert.Len(t, ct.errors, 1) {
			assert.Contains(t, ct.errors[0], "invalid actual JSON")
		}
	})
}
