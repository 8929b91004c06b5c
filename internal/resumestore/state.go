package resumestore

import (
	"sync/atomic"

	"resume-store-go/internal/types"
)

// backendState 存储的初始化状态
//
//	uninitialized -> structured | keyvalue
//	structured    -> keyvalue（一次性回退，不可逆）
type backendState int32

const (
	stateUninitialized backendState = iota
	stateStructured
	stateKeyValue
)

func (s backendState) String() string {
	switch s {
	case stateStructured:
		return string(types.StorageStructured)
	case stateKeyValue:
		return string(types.StorageKeyValue)
	default:
		return "uninitialized"
	}
}

// method 状态对应的 StorageMethod，未初始化时为空
func (s backendState) method() types.StorageMethod {
	switch s {
	case stateStructured:
		return types.StorageStructured
	case stateKeyValue:
		return types.StorageKeyValue
	default:
		return ""
	}
}

// stateMachine 无锁状态机，所有转换都是 CAS
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) current() backendState {
	return backendState(m.v.Load())
}

// ready 从 uninitialized 进入 to，只有第一次调用生效
func (m *stateMachine) ready(to backendState) bool {
	if to == stateUninitialized {
		return false
	}
	return m.v.CompareAndSwap(int32(stateUninitialized), int32(to))
}

// fallback structured -> keyvalue，返回本次调用是否完成了切换
func (m *stateMachine) fallback() bool {
	return m.v.CompareAndSwap(int32(stateStructured), int32(stateKeyValue))
}
