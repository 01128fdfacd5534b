package processor

import (
	"fmt"
	"strings"
)

// MaxStatusLen bounds the status text of every processor, in bytes. The
// display buffer is 512 bytes including its terminator.
const MaxStatusLen = 511

// StatusBuilder accumulates status text up to a byte limit. Records are
// appended whole or not at all, and once one record is refused every later
// record is refused too.
type StatusBuilder struct {
	sb    strings.Builder
	limit int
	full  bool
}

// NewStatusBuilder returns a builder limited to MaxStatusLen bytes
func NewStatusBuilder() *StatusBuilder {
	return &StatusBuilder{limit: MaxStatusLen}
}

// Appendf formats one record and appends it if it fits
func (s *StatusBuilder) Appendf(format string, args ...any) bool {
	if s.full {
		return false
	}
	rec := fmt.Sprintf(format, args...)
	if s.sb.Len()+len(rec) > s.limit {
		s.full = true
		return false
	}
	s.sb.WriteString(rec)
	return true
}

// Full reports whether a record has been refused
func (s *StatusBuilder) Full() bool { return s.full }

func (s *StatusBuilder) Len() int { return s.sb.Len() }

func (s *StatusBuilder) String() string { return s.sb.String() }
