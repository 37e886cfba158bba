package permission

// Level là kết quả resolve quyền cho cặp (actor, target)
type Level string

const (
	LevelInner     Level = "inner"
	LevelAdmin     Level = "admin"
	LevelModerator Level = "moderator"
	LevelFamily    Level = "family"
	LevelBlocked   Level = "blocked"
	LevelNone      Level = "none"
)

// rank: số càng lớn quyền càng cao. Level lạ => 0 (fail closed)
var rank = map[Level]int{
	LevelInner:     6,
	LevelAdmin:     5,
	LevelModerator: 4,
	LevelFamily:    3,
	LevelBlocked:   2,
	LevelNone:      1,
}

// Rank returns the privilege rank; unknown levels rank below none
func (l Level) Rank() int { return rank[l] }

// AtLeast reports whether l grants at least the privilege of other
func (l Level) AtLeast(other Level) bool {
	return l.Rank() > 0 && l.Rank() >= other.Rank()
}

// CanEdit: inner, admin, moderator được sửa trực tiếp.
// family chỉ được xem/đề xuất, blocked và none không được gì.
func (l Level) CanEdit() bool {
	switch l {
	case LevelInner, LevelAdmin, LevelModerator:
		return true
	}
	return false
}

// Valid reports whether l is one of the known levels
func (l Level) Valid() bool {
	_, ok := rank[l]
	return ok
}
