package loans

import "time"

const day = 24 * time.Hour

// DaysOverdue: 返却期限からの経過日数を日割り切り上げで返す。
// 期限内なら0。1秒でも日をまたげば1日と数える。
func DaysOverdue(dueOn, ref time.Time) int {
	if !ref.After(dueOn) {
		return 0
	}
	late := ref.Sub(dueOn)
	days := int(late / day)
	if late%day > 0 {
		days++
	}
	return days
}

// Fine: 延滞料金 = 延滞日数 × 日額。純粋関数。
func Fine(dueOn, ref time.Time, perDay int) int {
	return DaysOverdue(dueOn, ref) * perDay
}
