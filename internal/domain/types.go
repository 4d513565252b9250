package domain

import (
	"fmt"
	"time"
)

// Kind identifies one of the two singleton record kinds.
type Kind string

const (
	KindProfileImage Kind = "profileImage"
	KindResume       Kind = "resume"
)

// Kinds lists every record kind in sync order.
var Kinds = []Kind{KindProfileImage, KindResume}

// RecordID returns the fixed key a kind is stored under. There is only ever
// one live record per kind.
func (k Kind) RecordID() string {
	switch k {
	case KindProfileImage:
		return "currentProfileImage"
	case KindResume:
		return "currentResume"
	default:
		return ""
	}
}

func (k Kind) Valid() bool {
	return k == KindProfileImage || k == KindResume
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown record kind %q", s)
	}
	return k, nil
}

// Record is a stored upload. Data is a data URL; FileName is only set for
// resumes.
type Record struct {
	Kind      Kind
	Data      string
	FileName  string
	Timestamp time.Time
	UpdatedBy string
}

// NewerThan reports whether r should replace other. A nil other is always
// replaced.
func (r *Record) NewerThan(other *Record) bool {
	if r == nil {
		return false
	}
	if other == nil {
		return true
	}
	return r.Timestamp.After(other.Timestamp)
}
