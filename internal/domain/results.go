package domain

import (
	"math"
	"sort"
)

// CardCount 是分布中的一项
type CardCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Results 是翻牌后的统计结果。Average/Median 在没有数值卡时为 nil。
type Results struct {
	Average      *float64    `json:"average"`
	Median       *float64    `json:"median"`
	Agreement    int         `json:"agreement"`
	VoteCount    int         `json:"voteCount"`
	Consensus    *string     `json:"consensus"`
	Distribution []CardCount `json:"distribution"`
}

// Stats 转换为写入议题的统计
func (r Results) Stats() IssueStats {
	return IssueStats{
		Average:   r.Average,
		Median:    r.Median,
		Agreement: r.Agreement,
		VoteCount: r.VoteCount,
	}
}

// CountedVotes 过滤出计入统计的投票: 成员仍在房间、不是观众、且已投出卡片。
// 成员状态以调用时为准，而不是投票时。
func CountedVotes(votes []Vote, members []Membership) []Vote {
	eligible := make(map[string]bool, len(members))
	for i := range members {
		if members[i].CanVote() {
			eligible[members[i].ID] = true
		}
	}
	out := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if eligible[v.MembershipID] && v.HasVoted() {
			out = append(out, v)
		}
	}
	return out
}

// AllVotesIn 判断所有非观众成员是否都已投票。没有可投票成员时返回 false。
func AllVotesIn(members []Membership, votes []Vote) bool {
	voted := make(map[string]bool, len(votes))
	for i := range votes {
		if votes[i].HasVoted() {
			voted[votes[i].MembershipID] = true
		}
	}
	eligible := 0
	for i := range members {
		if !members[i].CanVote() {
			continue
		}
		eligible++
		if !voted[members[i].ID] {
			return false
		}
	}
	return eligible > 0
}

// ComputeResults 计算平均值、中位数、一致度、共识和分布。
func ComputeResults(votes []Vote, members []Membership) Results {
	counted := CountedVotes(votes, members)
	res := Results{VoteCount: len(counted), Distribution: []CardCount{}}
	if len(counted) == 0 {
		return res
	}

	counts := make(map[string]int)
	var numbers []float64
	for _, v := range counted {
		label := *v.CardLabel
		counts[label]++
		if n, ok := ParseNumericCard(label); ok {
			numbers = append(numbers, n)
		}
	}

	res.Distribution = sortDistribution(counts)

	maxCount := 0
	for _, c := range res.Distribution {
		if c.Count > maxCount {
			maxCount = c.Count
			label := c.Label
			res.Consensus = &label
		}
	}
	res.Agreement = int(math.Round(float64(maxCount) / float64(res.VoteCount) * 100))

	if len(numbers) > 0 {
		sum := 0.0
		for _, n := range numbers {
			sum += n
		}
		avg := math.Round(sum/float64(len(numbers))*10) / 10
		res.Average = &avg

		sort.Float64s(numbers)
		mid := len(numbers) / 2
		median := numbers[mid]
		if len(numbers)%2 == 0 {
			median = (numbers[mid-1] + numbers[mid]) / 2
		}
		res.Median = &median
	}
	return res
}

// sortDistribution: 数值卡按数值升序，其后是非数值卡按字典序
func sortDistribution(counts map[string]int) []CardCount {
	out := make([]CardCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, CardCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		vi, iNum := ParseNumericCard(out[i].Label)
		vj, jNum := ParseNumericCard(out[j].Label)
		switch {
		case iNum && jNum:
			if vi != vj {
				return vi < vj
			}
			return out[i].Label < out[j].Label
		case iNum:
			return true
		case jNum:
			return false
		default:
			return out[i].Label < out[j].Label
		}
	})
	return out
}
