package domain

// SanitizedVote 是投票返回给客户端的形态。
// 翻牌前，除查看者本人外，所有卡片信息都被置空，只保留 HasVoted。
type SanitizedVote struct {
	MembershipID string   `json:"membershipId"`
	HasVoted     bool     `json:"hasVoted"`
	CardLabel    *string  `json:"cardLabel"`
	CardValue    *float64 `json:"cardValue,omitempty"`
	CardIcon     *string  `json:"cardIcon,omitempty"`
	IsOwnVote    bool     `json:"isOwnVote"`
}

// SanitizeVotes 把原始投票转换为查看者可见的视图。
// viewerMembershipID 为空表示查看者不是房间成员。
func SanitizeVotes(votes []Vote, isGameOver bool, viewerMembershipID string) []SanitizedVote {
	out := make([]SanitizedVote, 0, len(votes))
	for i := range votes {
		v := &votes[i]
		own := viewerMembershipID != "" && v.MembershipID == viewerMembershipID
		sv := SanitizedVote{
			MembershipID: v.MembershipID,
			HasVoted:     v.HasVoted(),
			IsOwnVote:    own,
		}
		if isGameOver || own {
			sv.CardLabel = copyString(v.CardLabel)
			sv.CardValue = copyFloat(v.CardValue)
			sv.CardIcon = copyString(v.CardIcon)
		}
		out = append(out, sv)
	}
	return out
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	f := *p
	return &f
}
