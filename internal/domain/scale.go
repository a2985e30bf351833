package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ScaleType 是投票卡组的类型
type ScaleType string

const (
	ScaleFibonacci ScaleType = "fibonacci"
	ScaleStandard  ScaleType = "standard"
	ScaleTShirt    ScaleType = "tshirt"
	ScaleCustom    ScaleType = "custom"
)

// 特殊卡片，不参与数值统计
const (
	CardInfinity = "∞"
	CardUnsure   = "?"
	CardCoffee   = "☕"
)

const maxCustomCards = 30
const maxCardLabelLength = 16

var ErrInvalidScale = errors.New("invalid voting scale")

// VotingScale 描述房间使用的卡组。
type VotingScale struct {
	Type      ScaleType `json:"type"`
	Cards     []string  `json:"cards"`
	IsNumeric bool      `json:"isNumeric"`
}

var presetScales = map[ScaleType]VotingScale{
	ScaleFibonacci: {
		Type:      ScaleFibonacci,
		Cards:     []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", CardInfinity, CardUnsure, CardCoffee},
		IsNumeric: true,
	},
	ScaleStandard: {
		Type:      ScaleStandard,
		Cards:     []string{"0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100", CardUnsure, CardCoffee},
		IsNumeric: true,
	},
	ScaleTShirt: {
		Type:  ScaleTShirt,
		Cards: []string{"XS", "S", "M", "L", "XL", "XXL", CardUnsure, CardCoffee},
	},
}

// DefaultScale 返回默认卡组 (fibonacci)
func DefaultScale() VotingScale {
	return PresetScale(ScaleFibonacci)
}

// PresetScale 返回预置卡组的副本，未知类型返回 fibonacci
func PresetScale(t ScaleType) VotingScale {
	s, ok := presetScales[t]
	if !ok {
		s = presetScales[ScaleFibonacci]
	}
	s.Cards = append([]string(nil), s.Cards...)
	return s
}

// NewVotingScale 根据类型构建卡组。custom 类型必须提供卡片列表。
// 类型为空时使用默认卡组。
func NewVotingScale(t ScaleType, customCards []string) (VotingScale, error) {
	switch t {
	case "":
		return DefaultScale(), nil
	case ScaleFibonacci, ScaleStandard, ScaleTShirt:
		return PresetScale(t), nil
	case ScaleCustom:
		cards, err := normalizeCustomCards(customCards)
		if err != nil {
			return VotingScale{}, err
		}
		return VotingScale{Type: ScaleCustom, Cards: cards}, nil
	default:
		return VotingScale{}, fmt.Errorf("%w: unknown type %q", ErrInvalidScale, t)
	}
}

func normalizeCustomCards(cards []string) ([]string, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: custom scale requires at least one card", ErrInvalidScale)
	}
	if len(cards) > maxCustomCards {
		return nil, fmt.Errorf("%w: at most %d cards allowed", ErrInvalidScale, maxCustomCards)
	}
	seen := make(map[string]struct{}, len(cards))
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("%w: empty card label", ErrInvalidScale)
		}
		if len([]rune(c)) > maxCardLabelLength {
			return nil, fmt.Errorf("%w: card label %q is too long", ErrInvalidScale, c)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: duplicate card %q", ErrInvalidScale, c)
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// ParseNumericCard 把卡片标签解析为数值。特殊卡片、NaN 和无穷都不算数值。
func ParseNumericCard(label string) (float64, bool) {
	switch label {
	case CardInfinity, CardUnsure, CardCoffee, "":
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
