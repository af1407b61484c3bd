package compress

import (
	"fmt"
	"log/slog"

	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Tier names a storage temperature. Hot data stays resident and
// uncompressed, warm data favors symmetric speed, cold data favors ratio.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Policy maps tiers to compression profiles and carries the per-type
// overrides fed in through the registry hook. It implements
// domain.CompressionRegistrar.
type Policy struct {
	logger *slog.Logger

	lock      locking.SpinLock
	tiers     map[Tier]domain.CompressionProfile
	overrides map[domain.TypeID]domain.CompressionProfile
}

// DefaultTierProfiles is the shipped tier mapping: warm snapshots use s2
// for symmetric speed, cold snapshots use high-level zstd for ratio.
func DefaultTierProfiles() map[Tier]domain.CompressionProfile {
	return map[Tier]domain.CompressionProfile{
		TierHot:  {Codec: CodecNone},
		TierWarm: {Codec: CodecS2},
		TierCold: {Codec: CodecZstd, Level: 3},
	}
}

// NewPolicy builds a policy from the given tier mapping; nil uses the
// defaults. Profiles naming unknown codecs are replaced with the default
// for their tier and logged.
func NewPolicy(tiers map[Tier]domain.CompressionProfile, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultTierProfiles()
	merged := DefaultTierProfiles()
	for tier, profile := range tiers {
		if _, err := Lookup(profile.Codec, profile.Level); err != nil {
			logger.Warn("invalid tier profile", "tier", tier.String(), "codec", profile.Codec, "error", err)
			merged[tier] = defaults[tier]
			continue
		}
		merged[tier] = profile
	}
	return &Policy{
		logger:    logger,
		tiers:     merged,
		overrides: make(map[domain.TypeID]domain.CompressionProfile),
	}
}

// RegisterTypeCompression installs a per-type override consulted ahead of
// the tier mapping. Unknown codecs are rejected.
func (p *Policy) RegisterTypeCompression(id domain.TypeID, profile domain.CompressionProfile) error {
	if _, err := Lookup(profile.Codec, profile.Level); err != nil {
		return fmt.Errorf("type %d: %w", id, err)
	}
	p.lock.Lock()
	p.overrides[id] = profile
	p.lock.Unlock()
	return nil
}

// ProfileFor resolves the profile for data owned by the given type in the
// given tier. The zero TypeID skips override lookup.
func (p *Policy) ProfileFor(id domain.TypeID, tier Tier) domain.CompressionProfile {
	p.lock.Lock()
	defer p.lock.Unlock()
	if id != domain.InvalidTypeID {
		if profile, ok := p.overrides[id]; ok {
			return profile
		}
	}
	if profile, ok := p.tiers[tier]; ok {
		return profile
	}
	return domain.CompressionProfile{Codec: CodecNone}
}

// CodecFor resolves the codec for the given type and tier.
func (p *Policy) CodecFor(id domain.TypeID, tier Tier) (Codec, error) {
	profile := p.ProfileFor(id, tier)
	return Lookup(profile.Codec, profile.Level)
}

// Pack compresses src with the resolved codec and returns the payload
// with the codec name it was packed under, for the snapshot envelope.
func (p *Policy) Pack(id domain.TypeID, tier Tier, src []byte) (payload []byte, codec string, err error) {
	c, err := p.CodecFor(id, tier)
	if err != nil {
		return nil, "", err
	}
	out, err := c.Compress(src)
	if err != nil {
		return nil, "", fmt.Errorf("pack %s: %w", c.Name(), err)
	}
	return out, c.Name(), nil
}

// Unpack decompresses a payload packed under the named codec. The level
// is irrelevant on the decode side.
func Unpack(codec string, payload []byte) ([]byte, error) {
	c, err := Lookup(codec, 0)
	if err != nil {
		return nil, err
	}
	out, err := c.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", codec, err)
	}
	return out, nil
}
