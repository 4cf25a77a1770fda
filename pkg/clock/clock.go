package clock

import "time"

// Clock 为答题引擎提供可注入的时间来源，截止判定逻辑依赖它做确定性测试
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System 返回基于 time.Now 的时钟
func System() Clock {
	return systemClock{}
}
