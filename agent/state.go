package agent

import "fmt"

// State 定义 Host 生命周期状态
type State string

const (
	StateInitializing State = "initializing" // 运行时尚未获取
	StateReady        State = "ready"        // 可以处理消息
)

// validTransitions 定义合法的状态转换. Ready 是终态，不会回退.
var validTransitions = map[State][]State{
	StateInitializing: {StateReady},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
