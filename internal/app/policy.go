package app

import (
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(sid domain.ConnID) BackpressureAction
}

// SimplePolicy closes slow connections; normal disconnect handling follows.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConnID) BackpressureAction {
	return KickMember
}

// DropPolicy keeps slow connections and drops the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.ConnID) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the "backpressure" config value to a Policy.
func PolicyByName(name string) Policy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "drop":
		return DropPolicy{}
	default:
		return SimplePolicy{}
	}
}
