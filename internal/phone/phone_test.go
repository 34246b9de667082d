package phone

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Phone
	}{
		{"leading eight", "89991234567", "+79991234567"},
		{"formatted with plus", "+7 (999) 123-45-67", "+79991234567"},
		{"leading seven without plus", "79991234567", "+79991234567"},
		{"dashes and spaces", "8 999 123-45-67", "+79991234567"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"no digits", "call me", ""},
		{"plus only", "+", ""},
		{"short number gets plus", "12345", "+12345"},
		{"plus eight is kept", "+89991234567", "+89991234567"},
		{"foreign number", "+44 20 7946 0958", "+442079460958"},
		{"ten digits", "9991234567", "+9991234567"},
		{"twelve digits starting with eight", "899912345678", "+899912345678"},
		{"inner plus is dropped", "7+9991234567", "+79991234567"},
		{"full width digits", "８９９９１２３４５６７", "+79991234567"},
		{"surrounding spaces", "  +7 999 123 45 67  ", "+79991234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestPhoneAccessors(t *testing.T) {
	p := Normalize("89991234567")
	assert.False(t, p.IsEmpty())
	assert.True(t, p.HasPlus())
	assert.Equal(t, "79991234567", p.Digits())
	assert.Equal(t, "+79991234567", p.String())

	var empty Phone
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.HasPlus())
	assert.Equal(t, "", empty.Digits())
}

func TestNormalize_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	raw := gen.OneGenOf(
		gen.AnyString(),
		gen.NumString(),
		gen.NumString().Map(func(s string) string { return "8" + s }),
		gen.NumString().Map(func(s string) string { return "+7 (" + s + ")" }),
	)

	properties.Property("normalize is idempotent", prop.ForAll(
		func(s string) bool {
			once := Normalize(s)
			return Normalize(once.String()) == once
		},
		raw,
	))

	properties.Property("normalize is deterministic", prop.ForAll(
		func(s string) bool {
			return Normalize(s) == Normalize(s)
		},
		raw,
	))

	properties.Property("non-empty result always starts with plus and holds only digits", prop.ForAll(
		func(s string) bool {
			p := Normalize(s)
			if p.IsEmpty() {
				return true
			}
			if !p.HasPlus() || len(p.Digits()) == 0 {
				return false
			}
			for _, r := range p.Digits() {
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		},
		raw,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
