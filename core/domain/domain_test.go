package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"majority", "minority", "minorityDiffusion"} {
		c, err := ParseCondition(s)
		require.NoError(t, err)
		assert.True(t, c.Valid())
	}

	_, err := ParseCondition("control")
	assert.Error(t, err)
}

func TestStanceOpposite(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StanceOppose, StanceSupport.Opposite())
	assert.Equal(t, StanceSupport, StanceOppose.Opposite())
	// Neutral has no opposite; oppose is the designated counter-stance.
	assert.Equal(t, StanceOppose, StanceNeutral.Opposite())
}

func TestStanceFromOpinion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value int
		want  Stance
	}{
		{value: 50, want: StanceSupport},
		{value: 1, want: StanceSupport},
		{value: 0, want: StanceNeutral},
		{value: -1, want: StanceOppose},
		{value: -50, want: StanceOppose},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, StanceFromOpinion(tc.value), "value %d", tc.value)
	}
}

func TestParseSessionKeyLegacyNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want SessionKey
	}{
		{in: "test", want: SessionTest},
		{in: "normative", want: SessionNormative},
		{in: "main1", want: SessionNormative},
		{in: "informative", want: SessionInformative},
		{in: "main2", want: SessionInformative},
	}

	for _, tc := range tests {
		got, err := ParseSessionKey(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := ParseSessionKey("main3")
	assert.Error(t, err)
}

func TestAgentRole(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoleAgent1, AgentRole(1))
	assert.Equal(t, RoleAgent2, AgentRole(2))
	assert.Equal(t, RoleAgent3, AgentRole(3))
	assert.Equal(t, Role(""), AgentRole(4))
}
