package selector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type snapshot struct {
	names *[]string
	flag  *bool
}

func TestNew1RecomputesOnReferenceChange(t *testing.T) {
	var calls int
	count := New1(func(s snapshot) *[]string { return s.names }, func(names *[]string) int {
		calls++
		return len(*names)
	})

	names := []string{"a", "b"}
	s := snapshot{names: &names}
	assert.Equal(t, 2, count(s))
	assert.Equal(t, 2, count(s))
	assert.Equal(t, 1, calls)

	// same content behind a new reference counts as a change
	again := []string{"a", "b"}
	assert.Equal(t, 2, count(snapshot{names: &again}))
	assert.Equal(t, 2, calls)
}

func TestNew2(t *testing.T) {
	var calls int
	sel := New2(
		func(s snapshot) *[]string { return s.names },
		func(s snapshot) *bool { return s.flag },
		func(names *[]string, flag *bool) []string {
			calls++
			if *flag {
				return *names
			}
			return nil
		},
	)

	names := []string{"x"}
	on, off := true, false
	s := snapshot{names: &names, flag: &on}
	assert.Equal(t, []string{"x"}, sel(s))
	assert.Equal(t, []string{"x"}, sel(s))
	assert.Equal(t, 1, calls)

	s.flag = &off
	assert.Nil(t, sel(s))
	assert.Equal(t, 2, calls)
}

func TestNew3Concurrent(t *testing.T) {
	a, b, c := 1, 2, 3
	sum := New3(
		func(int) *int { return &a },
		func(int) *int { return &b },
		func(int) *int { return &c },
		func(a, b, c *int) int { return *a + *b + *c },
	)

	wg := &sync.WaitGroup{}
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 6, sum(0))
		}()
	}
	wg.Wait()
}
