package domain_test

import (
	"testing"

	"agilekit/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeVotes_HidesOthersBeforeReveal(t *testing.T) {
	// Arrange
	five, eight := "5", "8"
	val := 5.0
	votes := []domain.Vote{
		{MembershipID: "me", CardLabel: &five, CardValue: &val},
		{MembershipID: "other", CardLabel: &eight},
		{MembershipID: "idle"},
	}

	// Act
	view := domain.SanitizeVotes(votes, false, "me")

	// Assert
	require.Len(t, view, 3)
	require.NotNil(t, view[0].CardLabel)
	assert.Equal(t, "5", *view[0].CardLabel)
	assert.True(t, view[0].IsOwnVote)
	assert.True(t, view[1].HasVoted)
	assert.Nil(t, view[1].CardLabel, "他人的卡片在翻牌前不可见")
	assert.Nil(t, view[1].CardValue)
	assert.False(t, view[2].HasVoted)
}

func TestSanitizeVotes_ShowsAllAfterReveal(t *testing.T) {
	eight := "8"
	votes := []domain.Vote{{MembershipID: "other", CardLabel: &eight}}

	view := domain.SanitizeVotes(votes, true, "")

	require.Len(t, view, 1)
	require.NotNil(t, view[0].CardLabel)
	assert.Equal(t, "8", *view[0].CardLabel)
	assert.False(t, view[0].IsOwnVote)
}

func TestSanitizeVotes_DoesNotAliasSource(t *testing.T) {
	label := "3"
	votes := []domain.Vote{{MembershipID: "me", CardLabel: &label}}

	view := domain.SanitizeVotes(votes, false, "me")
	*view[0].CardLabel = "13"

	assert.Equal(t, "3", label)
}
