package goose

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignMachineNames_DisambiguatesCollisions(t *testing.T) {
	a := NewScenario("Browse Site")
	b := NewScenario("browse site!")
	c := NewScenario("Checkout")
	assignMachineNames([]*Scenario{a, b, c})

	assert.Equal(t, "browsesite", a.MachineName())
	assert.Equal(t, "browsesite_1", b.MachineName())
	assert.Equal(t, "checkout", c.MachineName())
}

func TestWildcardMatch(t *testing.T) {
	assert.True(t, wildcardMatch("*", "anything"))
	assert.True(t, wildcardMatch("checkout", "checkout"))
	assert.False(t, wildcardMatch("checkout", "browse"))
	assert.True(t, wildcardMatch("check*", "checkout"))
	assert.True(t, wildcardMatch("*out", "checkout"))
	assert.True(t, wildcardMatch("che*out", "checkout"))
	assert.False(t, wildcardMatch("che*xyz", "checkout"))
}

func TestMatchesAnyPattern_EmptyMeansAll(t *testing.T) {
	assert.True(t, matchesAnyPattern("checkout", nil))
	assert.True(t, matchesAnyPattern("checkout", []string{"browse", "check*"}))
	assert.False(t, matchesAnyPattern("checkout", []string{"browse"}))
}

func TestExpandSchedule_SerialRepeatsByWeight(t *testing.T) {
	t1 := NewTransaction("a", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetWeight(1)
	t2 := NewTransaction("b", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetWeight(3)
	rng := rand.New(rand.NewSource(1))

	seq := expandSchedule([]*Transaction{t1, t2}, Serial, rng)
	require.Len(t, seq, 4)
	assert.Equal(t, "a", seq[0].Name)
	assert.Equal(t, "b", seq[1].Name)
	assert.Equal(t, "b", seq[2].Name)
	assert.Equal(t, "b", seq[3].Name)
}

func TestExpandSchedule_RoundRobinInterleaves(t *testing.T) {
	t1 := NewTransaction("a", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetWeight(2)
	t2 := NewTransaction("b", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetWeight(2)
	rng := rand.New(rand.NewSource(1))

	seq := expandSchedule([]*Transaction{t1, t2}, RoundRobin, rng)
	require.Len(t, seq, 4)
	assert.Equal(t, "a", seq[0].Name)
	assert.Equal(t, "b", seq[1].Name)
	assert.Equal(t, "a", seq[2].Name)
	assert.Equal(t, "b", seq[3].Name)
}

func TestGroupBySequence_OrdersAscendingAndGroupsSharedValues(t *testing.T) {
	t1 := NewTransaction("first", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetSequence(2)
	t2 := NewTransaction("second", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetSequence(1)
	t3 := NewTransaction("also-second", func(u *User) TransactionOutcome { return TransactionOutcome{} }).SetSequence(1)
	unseq := NewTransaction("unsequenced", func(u *User) TransactionOutcome { return TransactionOutcome{} })

	groups := groupBySequence([]*Transaction{t1, t2, t3, unseq})
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2) // sequence 1: second + also-second
	assert.Len(t, groups[1], 1) // sequence 2: first
	assert.Len(t, groups[2], 1) // unsequenced
}
