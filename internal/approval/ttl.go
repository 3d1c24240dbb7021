package approval

import (
	"fmt"
	"math"
	"time"

	xerrors "Jarvis-Orchestrator/internal/errors"
)

// MaxHours 是 time.Duration 能表示的最大整小时数。
const MaxHours = math.MaxInt64 / int64(time.Hour)

// HoursTTL 把授权小时数转换为时长，不在 (0, MaxHours] 内时返回 invalid_argument。
func HoursTTL(hours float64) (time.Duration, error) {
	if math.IsNaN(hours) || hours <= 0 || hours > float64(MaxHours) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("授权时长必须在 (0, %d] 小时之间", MaxHours))
	}
	return time.Duration(hours * float64(time.Hour)), nil
}
