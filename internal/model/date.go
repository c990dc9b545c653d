package model

import (
	"fmt"
	"time"
)

// DateLayout は日付のみを表すフォーマット。
const DateLayout = "2006-01-02"

// DayOf は時刻tの暦日（tのロケーションでの年月日）をUTC 0時として返す。
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate は "YYYY-MM-DD" 形式の日付をUTC 0時として解析する。
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ParseDateOrTimestamp は "YYYY-MM-DD" またはRFC 3339形式を受け付ける。
// RFC 3339の場合は時刻部分を保持する。
func ParseDateOrTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// WallClockUTC はtの壁時計（年月日と時刻）をそのままUTCとして読み替える。
// オフセット付きの入力でも、暦日の判定と保存後に表示される日付が一致する。
func WallClockUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
