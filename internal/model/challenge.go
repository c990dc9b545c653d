package model

import "time"

// ActivityType はチャレンジ対象の運動種別を表す。
type ActivityType string

const (
	ActivityTypeCycling ActivityType = "cycling"
	ActivityTypeRunning ActivityType = "running"
	ActivityTypeWalking ActivityType = "walking"
	ActivityTypeGolfing ActivityType = "golfing"
	ActivityTypeRowing  ActivityType = "rowing"
)

// ActivityTypes はサポートする運動種別の一覧。
var ActivityTypes = []ActivityType{
	ActivityTypeCycling,
	ActivityTypeRunning,
	ActivityTypeWalking,
	ActivityTypeGolfing,
	ActivityTypeRowing,
}

// ParseActivityType は文字列をActivityTypeに変換する。
// 未知の値の場合はokにfalseを返す。
func ParseActivityType(s string) (ActivityType, bool) {
	for _, t := range ActivityTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Challenge は1つの競技期間を表す。
// StartDateとEndDateはUTC 0時の日付で、両端を含む。
type Challenge struct {
	ID           string
	Title        string
	Description  string // 任意
	ActivityType ActivityType
	StartDate    time.Time
	EndDate      time.Time
	TargetGoal   float64 // km
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contains は指定時刻の暦日がチャレンジ期間内かを判定する。
// 時刻部分は無視する。
func (c *Challenge) Contains(t time.Time) bool {
	day := DayOf(t)
	return !day.Before(DayOf(c.StartDate)) && !day.After(DayOf(c.EndDate))
}

// Overlaps は2つのチャレンジの期間が1日でも重なるかを判定する。
func (c *Challenge) Overlaps(other *Challenge) bool {
	return !DayOf(c.StartDate).After(DayOf(other.EndDate)) &&
		!DayOf(other.StartDate).After(DayOf(c.EndDate))
}

// DaysLeft は指定時刻から終了日までの残り日数を返す。終了日当日は0。
func (c *Challenge) DaysLeft(now time.Time) int {
	days := int(DayOf(c.EndDate).Sub(DayOf(now)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
