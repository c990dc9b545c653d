package strava

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/movemonth/internal/model"
)

// activityTypes はStravaの種別からローカルの運動種別への対応表。
var activityTypes = map[string]model.ActivityType{
	"Ride":             model.ActivityTypeCycling,
	"VirtualRide":      model.ActivityTypeCycling,
	"EBikeRide":        model.ActivityTypeCycling,
	"GravelRide":       model.ActivityTypeCycling,
	"MountainBikeRide": model.ActivityTypeCycling,
	"Run":              model.ActivityTypeRunning,
	"TrailRun":         model.ActivityTypeRunning,
	"VirtualRun":       model.ActivityTypeRunning,
	"Walk":             model.ActivityTypeWalking,
	"Hike":             model.ActivityTypeWalking,
	"Golf":             model.ActivityTypeGolfing,
	"Rowing":           model.ActivityTypeRowing,
	"VirtualRow":       model.ActivityTypeRowing,
}

// MapActivityType はStravaの種別をローカルの運動種別に変換する。
// sport_typeを優先し、対応しない場合はtypeを使う。
func MapActivityType(a Activity) (model.ActivityType, bool) {
	if t, ok := activityTypes[a.SportType]; ok {
		return t, true
	}
	t, ok := activityTypes[a.Type]
	return t, ok
}

// MapActivities はStravaのアクティビティをユーザーのアクティビティに変換する。
// 対応しない種別はスキップし、その件数を返す。
// ChallengeIDは設定しない。
func MapActivities(userID string, in []Activity, now time.Time) ([]*model.Activity, int) {
	out := make([]*model.Activity, 0, len(in))
	skipped := 0
	for _, a := range in {
		t, ok := MapActivityType(a)
		if !ok || a.ID == 0 {
			skipped++
			continue
		}
		duration := a.MovingTime
		out = append(out, &model.Activity{
			ID:           uuid.New().String(),
			UserID:       userID,
			ActivityType: t,
			Distance:     MetersToKilometers(a.Distance),
			Duration:     &duration,
			ActivityDate: a.StartDate,
			Source:       model.ActivitySourceStrava,
			ExternalID:   strconv.FormatInt(a.ID, 10),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out, skipped
}

// MetersToKilometers はメートルをキロメートルに変換する。負の値は0とする。
func MetersToKilometers(m float64) float64 {
	if m <= 0 {
		return 0
	}
	return m / 1000
}
