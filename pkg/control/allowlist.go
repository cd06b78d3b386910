package control

import (
	"strings"
	"sync"
)

// Wildcard in an allow-list admits every operator.
const Wildcard = "*"

// AllowList holds the operator identities permitted to issue commands.
type AllowList struct {
	mutex     sync.RWMutex
	operators map[string]struct{}
}

func NewAllowList(operators ...string) *AllowList {
	a := &AllowList{operators: make(map[string]struct{})}
	for _, op := range operators {
		a.Add(op)
	}
	return a
}

func (a *AllowList) Add(operator string) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.operators[operator] = struct{}{}
}

// Allowed is false for an empty identity and for a nil or empty list.
func (a *AllowList) Allowed(operator string) bool {
	if a == nil || operator == "" {
		return false
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if _, ok := a.operators[Wildcard]; ok {
		return true
	}
	_, ok := a.operators[operator]
	return ok
}

func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.operators)
}
