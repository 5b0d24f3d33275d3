package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// Property: currency strings carry a $ prefix, comma groups of three, two
// decimals, and parse back to the rounded amount.
func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	grouped := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

	properties.Property("shape", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)
			body := strings.TrimPrefix(formatted, "-")
			if !strings.HasPrefix(body, "$") {
				return false
			}
			intPart, decPart, ok := strings.Cut(strings.TrimPrefix(body, "$"), ".")
			return ok && len(decPart) == 2 && grouped.MatchString(intPart)
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("value preserved", prop.ForAll(
		func(amount float64) bool {
			parsed := parseCurrency(FormatCurrency(amount))
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("percent sign", prop.ForAll(
		func(value float64) bool {
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				return false
			}
			return value <= 0 || strings.HasPrefix(formatted, "+")
		},
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}

func parseCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		return -v
	}
	return v
}

func TestFormatCurrencyExamples(t *testing.T) {
	cases := []struct {
		amount   float64
		expected string
	}{
		{0, "$0.00"},
		{999.999, "$1,000.00"},
		{1000, "$1,000.00"},
		{100000, "$100,000.00"},
		{12345678.9, "$12,345,678.90"},
		{-1234.56, "-$1,234.56"},
		{-0.001, "$0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatCurrency(tc.amount))
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "+$250.00", FormatPnL(250))
	assert.Equal(t, "-$3.50", FormatPnL(-3.5))
	assert.Equal(t, "0.00%", FormatPercent(0))
	assert.Equal(t, "-2.50%", FormatPercent(-2.5))
	assert.Equal(t, "150.25", FormatPrice(150.254))
	assert.Equal(t, "2.1235", FormatPrice(2.12346))
	assert.Equal(t, "1,500", FormatQuantity(1500))
	assert.Equal(t, "-20", FormatQuantity(-20))
	assert.Equal(t, "0.5", FormatQuantity(0.5))
	assert.Equal(t, "85%", FormatConfidence(0.85))
	assert.Equal(t, "1h 30m", FormatDuration(90*time.Minute))
	assert.Equal(t, "2d 3h", FormatDuration(51*time.Hour))
	assert.Equal(t, "abc...", TruncateString("abcdefgh", 6))
	assert.Equal(t, "abc", TruncateString("abc", 6))
}
