// Package assert provides named business conditions. Aggregates combine
// them in Decide; es.Require turns the first failing one into a rejection
// whose reason is the condition's name.
package assert

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
)

var ErrFailed = errors.New("assertion failed")

type CondFunc func() bool

type Cond interface {
	String() string
	Eval() bool
	Check() error
}

type cond struct {
	name  string
	eval  CondFunc
	check func() error
}

func (c *cond) String() string { return c.name }
func (c *cond) Eval() bool     { return c.eval() }
func (c *cond) Check() error   { return c.check() }

func newCond(name string, eval CondFunc) *cond {
	c := &cond{name: name, eval: eval}
	c.check = func() error {
		if !eval() {
			return fmt.Errorf("%w: %s", ErrFailed, name)
		}
		return nil
	}
	return c
}

// That wraps an arbitrary predicate.
func That(name string, fn CondFunc) Cond { return newCond(name, fn) }

func True(v bool, name string) Cond  { return newCond(name, func() bool { return v }) }
func False(v bool, name string) Cond { return newCond(name, func() bool { return !v }) }

func Not(c Cond) Cond {
	return newCond("not("+c.String()+")", func() bool { return !c.Eval() })
}

func Eq[T comparable](a, b T, name string) Cond  { return newCond(name, func() bool { return a == b }) }
func GT[T cmp.Ordered](a, b T, name string) Cond { return newCond(name, func() bool { return a > b }) }
func GTE[T cmp.Ordered](a, b T, name string) Cond {
	return newCond(name, func() bool { return a >= b })
}
func LTE[T cmp.Ordered](a, b T, name string) Cond {
	return newCond(name, func() bool { return a <= b })
}

// NotEmpty holds for a non-blank string.
func NotEmpty(s string, name string) Cond {
	return newCond(name, func() bool { return strings.TrimSpace(s) != "" })
}

// All holds when every condition holds. Check reports the first failure.
func All(cs ...Cond) Cond {
	all := newCond("all", func() bool { return FirstFailed(cs...) == nil })
	all.check = func() error {
		if c := FirstFailed(cs...); c != nil {
			return c.Check()
		}
		return nil
	}
	return all
}

// FirstFailed returns the first condition that does not hold, or nil.
func FirstFailed(cs ...Cond) Cond {
	for _, c := range cs {
		if !c.Eval() {
			return c
		}
	}
	return nil
}
