package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreconditionPassesWhenTrue(t *testing.T) {
	assert.NotPanics(t, func() {
		Precondition(true, "should not fire")
	})
}

func TestPreconditionPanicsWhenFalse(t *testing.T) {
	defer func() {
		r := recover()
		if assert.NotNil(t, r) {
			assert.Contains(t, r.(string), "PRECONDITION VIOLATION: count must be positive")
		}
	}()
	Precondition(false, "count must be positive")
}

func TestNotNilDetectsTypedNil(t *testing.T) {
	var p *int
	assert.Panics(t, func() {
		NotNil(p, "p")
	})
}

func TestNotNilAcceptsValue(t *testing.T) {
	x := 5
	assert.NotPanics(t, func() {
		NotNil(&x, "x")
	})
}

func TestInRange(t *testing.T) {
	assert.NotPanics(t, func() { InRange(5, 0, 10, "x") })
	assert.Panics(t, func() { InRange(-1, 0, 10, "x") })
	assert.Panics(t, func() { InRange(11, 0, 10, "x") })
}
