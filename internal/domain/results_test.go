package domain_test

import (
	"testing"

	"agilekit/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func members(ids ...string) []domain.Membership {
	out := make([]domain.Membership, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Membership{ID: id, Role: domain.RoleParticipant})
	}
	return out
}

func votesFor(labels map[string]string) []domain.Vote {
	out := make([]domain.Vote, 0, len(labels))
	for mid, label := range labels {
		l := label
		out = append(out, domain.Vote{ID: "v-" + mid, MembershipID: mid, CardLabel: &l})
	}
	return out
}

func TestComputeResults_AverageRoundsToOneDecimal(t *testing.T) {
	res := domain.ComputeResults(
		votesFor(map[string]string{"a": "3", "b": "5", "c": "8"}),
		members("a", "b", "c"),
	)

	require.NotNil(t, res.Average)
	assert.Equal(t, 5.3, *res.Average)
	require.NotNil(t, res.Median)
	assert.Equal(t, 5.0, *res.Median)
	assert.Equal(t, 3, res.VoteCount)
}

func TestComputeResults_AgreementAndDistribution(t *testing.T) {
	res := domain.ComputeResults(
		votesFor(map[string]string{"a": "5", "b": "5", "c": "8", "d": "5", "e": "?", "f": "3"}),
		members("a", "b", "c", "d", "e", "f"),
	)

	want := []domain.CardCount{
		{Label: "3", Count: 1},
		{Label: "5", Count: 3},
		{Label: "8", Count: 1},
		{Label: "?", Count: 1},
	}
	if diff := cmp.Diff(want, res.Distribution); diff != "" {
		t.Errorf("distribution mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 50, res.Agreement, "3/6 = 50%")
	require.NotNil(t, res.Consensus)
	assert.Equal(t, "5", *res.Consensus)
}

func TestComputeResults_SeventyFivePercent(t *testing.T) {
	res := domain.ComputeResults(
		votesFor(map[string]string{"a": "5", "b": "5", "c": "5", "d": "8"}),
		members("a", "b", "c", "d"),
	)
	assert.Equal(t, 75, res.Agreement)
	require.NotNil(t, res.Median)
	assert.Equal(t, 5.0, *res.Median)
}

func TestComputeResults_EvenMedianAndTieBreak(t *testing.T) {
	res := domain.ComputeResults(
		votesFor(map[string]string{"a": "8", "b": "2", "c": "8", "d": "2"}),
		members("a", "b", "c", "d"),
	)
	require.NotNil(t, res.Median)
	assert.Equal(t, 5.0, *res.Median)
	require.NotNil(t, res.Consensus)
	assert.Equal(t, "2", *res.Consensus, "并列时取排序后的第一个")
}

func TestComputeResults_ExcludesSpectatorsAndDepartedMembers(t *testing.T) {
	// Arrange: b 投票后变成观众, c 已离开房间
	ms := members("a", "b")
	ms[1].IsSpectator = true
	votes := votesFor(map[string]string{"a": "3", "b": "13", "c": "21"})

	// Act
	res := domain.ComputeResults(votes, ms)

	// Assert
	assert.Equal(t, 1, res.VoteCount)
	require.NotNil(t, res.Average)
	assert.Equal(t, 3.0, *res.Average)
	assert.Equal(t, 100, res.Agreement)
}

func TestComputeResults_NonNumericOnly(t *testing.T) {
	res := domain.ComputeResults(
		votesFor(map[string]string{"a": "M", "b": "XL", "c": "L", "d": "☕"}),
		members("a", "b", "c", "d"),
	)
	assert.Nil(t, res.Average)
	assert.Nil(t, res.Median)
	labels := make([]string, 0, len(res.Distribution))
	for _, c := range res.Distribution {
		labels = append(labels, c.Label)
	}
	assert.Equal(t, []string{"L", "M", "XL", "☕"}, labels)
}

func TestComputeResults_Empty(t *testing.T) {
	res := domain.ComputeResults(nil, members("a"))
	assert.Equal(t, 0, res.VoteCount)
	assert.Nil(t, res.Consensus)
	assert.Empty(t, res.Distribution)
}

func TestAllVotesIn(t *testing.T) {
	ms := members("a", "b", "c")
	ms[2].IsSpectator = true

	assert.False(t, domain.AllVotesIn(ms, votesFor(map[string]string{"a": "1"})))
	assert.True(t, domain.AllVotesIn(ms, votesFor(map[string]string{"a": "1", "b": "2"})), "观众不计入完成度")
	assert.False(t, domain.AllVotesIn(nil, nil), "没有可投票成员时不算完成")

	empty := ""
	votes := []domain.Vote{{MembershipID: "a", CardLabel: &empty}, {MembershipID: "b", CardLabel: nil}}
	assert.False(t, domain.AllVotesIn(ms, votes), "空卡片不算已投票")
}

func TestParseNumericCard(t *testing.T) {
	v, ok := domain.ParseNumericCard("0.5")
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	for _, s := range []string{"∞", "?", "☕", "XL", "NaN", "Inf", ""} {
		_, ok := domain.ParseNumericCard(s)
		assert.False(t, ok, s)
	}
}

func TestNewVotingScale(t *testing.T) {
	s, err := domain.NewVotingScale("", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ScaleFibonacci, s.Type)
	assert.True(t, s.IsNumeric)

	s, err = domain.NewVotingScale(domain.ScaleCustom, []string{" A ", "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, s.Cards)
	assert.False(t, s.IsNumeric)

	_, err = domain.NewVotingScale(domain.ScaleCustom, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidScale)
	_, err = domain.NewVotingScale(domain.ScaleCustom, []string{"A", "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidScale)
	_, err = domain.NewVotingScale("poker", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidScale)
}
