package domain

// Role 表示成员在房间内的角色。
// 角色之间是全序关系: participant < facilitator < owner。
type Role string

const (
	RoleParticipant Role = "participant"
	RoleFacilitator Role = "facilitator"
	RoleOwner       Role = "owner"
)

// rank 返回角色在全序中的位置，未知角色视为最低
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 2
	case RoleFacilitator:
		return 1
	default:
		return 0
	}
}

// AtLeast 判断 r 是否不低于 other。
// 所有 "角色至少为 X" 的判断都应通过此方法完成。
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

// Valid 判断是否是已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleFacilitator, RoleParticipant:
		return true
	}
	return false
}
