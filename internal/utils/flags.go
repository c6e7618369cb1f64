package utils

import (
	"math/bits"
	"strings"
)

// Flags is any bitmask type whose individual bits can be named
type Flags interface {
	~int32 | ~uint32
}

// FlagStringMapping renders bitmask values as a pipe-separated list of registered bit names
type FlagStringMapping[T Flags] struct {
	names map[T]string
}

func NewFlagStringMapping[T Flags]() FlagStringMapping[T] {
	return FlagStringMapping[T]{names: make(map[T]string)}
}

func (m FlagStringMapping[T]) Register(flag T, str string) {
	m.names[flag] = str
}

func (m FlagStringMapping[T]) FlagsToString(value T) string {
	if value == 0 {
		return "None"
	}

	var sb strings.Builder
	remaining := uint32(value)
	for remaining != 0 {
		bit := T(uint32(1) << bits.TrailingZeros32(remaining))
		remaining &^= uint32(bit)

		if sb.Len() > 0 {
			sb.WriteString("|")
		}

		name, ok := m.names[bit]
		if !ok {
			name = "Unknown"
		}
		sb.WriteString(name)
	}

	return sb.String()
}
