package types

import (
	"time"

	"github.com/uptrace/bun"
)

// ExemptionSubsystem identifies the protective subsystem an exemption applies
// to. Subsystems are exempted separately so a guild can, for example, whitelist
// a channel from the spam rule while keeping the word filter active there.
type ExemptionSubsystem string

const (
	ExemptSpam   ExemptionSubsystem = "spam"
	ExemptRepeat ExemptionSubsystem = "repeat"
	ExemptFilter ExemptionSubsystem = "filter"
)

// SubsystemForRule maps a rule kind to the exemption subsystem that governs it.
func SubsystemForRule(kind RuleKind) ExemptionSubsystem {
	switch kind {
	case RuleSpam:
		return ExemptSpam
	case RuleRepeat:
		return ExemptRepeat
	default:
		return ExemptFilter
	}
}

// ExemptionTarget is the kind of entity an exemption row references.
type ExemptionTarget string

const (
	ExemptionTargetUser    ExemptionTarget = "user"
	ExemptionTargetChannel ExemptionTarget = "channel"
	ExemptionTargetRole    ExemptionTarget = "role"
)

// Exemption stores a single whitelist entry for a guild subsystem.
type Exemption struct {
	bun.BaseModel `bun:"table:guild_exemptions"`

	GuildID    uint64             `bun:"guild_id,pk"`
	Subsystem  ExemptionSubsystem `bun:"subsystem,pk"`
	TargetType ExemptionTarget    `bun:"target_type,pk"`
	TargetID   uint64             `bun:"target_id,pk"`
	CreatedAt  time.Time          `bun:"created_at,notnull,default:current_timestamp"`
}

// ExemptionSet is the in-memory view of a subsystem's whitelist, read-only to
// the core.
type ExemptionSet struct {
	Users    map[uint64]struct{}
	Channels map[uint64]struct{}
	Roles    map[uint64]struct{}
}

// NewExemptionSet returns an empty set.
func NewExemptionSet() *ExemptionSet {
	return &ExemptionSet{
		Users:    make(map[uint64]struct{}),
		Channels: make(map[uint64]struct{}),
		Roles:    make(map[uint64]struct{}),
	}
}

// Add inserts a target into the set.
func (s *ExemptionSet) Add(targetType ExemptionTarget, id uint64) {
	switch targetType {
	case ExemptionTargetUser:
		s.Users[id] = struct{}{}
	case ExemptionTargetChannel:
		s.Channels[id] = struct{}{}
	case ExemptionTargetRole:
		s.Roles[id] = struct{}{}
	}
}

// ContainsUser reports whether the user is whitelisted.
func (s *ExemptionSet) ContainsUser(id uint64) bool {
	_, ok := s.Users[id]
	return ok
}

// ContainsChannel reports whether the channel is whitelisted.
func (s *ExemptionSet) ContainsChannel(id uint64) bool {
	_, ok := s.Channels[id]
	return ok
}

// ContainsAnyRole reports whether any of the role IDs is whitelisted.
func (s *ExemptionSet) ContainsAnyRole(ids []uint64) bool {
	for _, id := range ids {
		if _, ok := s.Roles[id]; ok {
			return true
		}
	}

	return false
}
