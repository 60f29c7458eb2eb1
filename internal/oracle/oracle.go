package oracle

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/types"
)

// DefaultFeedDecimals matches the scale most reference feeds report in.
const DefaultFeedDecimals = 8

// maxNormalizedValue bounds the accounting-unit range the engine supports.
// Conversions past it fail with ErrArithmeticOverflow instead of being
// carried through with silently degraded precision.
var maxNormalizedValue = decimal.New(1, 30)

// Service converts raw bid amounts into the common accounting unit using the
// registered feed bindings. Converted values are never cached: every call
// reads the latest feed round, so the same raw amount may normalize
// differently at different times.
type Service struct {
	db               *Database
	defaultTolerance time.Duration
	now              func() time.Time
}

func NewService(gormDB *gorm.DB, defaultTolerance time.Duration) *Service {
	return &Service{
		db:               NewDatabase(gormDB),
		defaultTolerance: defaultTolerance,
		now:              time.Now,
	}
}

// RegisterFeeds registers asset kind / feed source bindings pairwise.
// Fails with ErrLengthMismatch if the lists differ in size; existing
// bindings for the same asset kind are overwritten.
func (s *Service) RegisterFeeds(assetKinds, sources []string) error {
	if len(assetKinds) != len(sources) {
		return fmt.Errorf("%w: %d asset kinds, %d sources", types.ErrLengthMismatch, len(assetKinds), len(sources))
	}

	for i := range assetKinds {
		binding := &PriceFeedBinding{
			AssetKind:    assetKinds[i],
			Source:       sources[i],
			Decimals:     DefaultFeedDecimals,
			ToleranceSec: int64(s.defaultTolerance / time.Second),
		}
		if err := s.db.UpsertBinding(binding); err != nil {
			return fmt.Errorf("failed to register feed for %s: %w", assetKinds[i], err)
		}
		log.Info().
			Str("asset_kind", assetKinds[i]).
			Str("source", sources[i]).
			Str("service", "oracle").
			Msg("registered price feed binding")
	}
	return nil
}

// Binding returns the registered binding for an asset kind, or nil.
func (s *Service) Binding(assetKind string) (*PriceFeedBinding, error) {
	return s.db.GetBinding(assetKind)
}

func (s *Service) Bindings() ([]PriceFeedBinding, error) {
	return s.db.ListBindings()
}

// PostRound records a fresh price reading for a feed source. The answer is
// expressed at the binding's decimals scale, as reference feeds report it.
func (s *Service) PostRound(source string, answer decimal.Decimal) error {
	return s.db.CreateRound(&FeedRound{
		Source:   source,
		Answer:   answer,
		PostedAt: s.now(),
	})
}

// LatestAnswer returns the most recent usable reading for an asset kind.
func (s *Service) LatestAnswer(assetKind string) (decimal.Decimal, error) {
	_, round, err := s.latestRound(assetKind)
	if err != nil {
		return decimal.Zero, err
	}
	return round.Answer, nil
}

// Normalize converts a raw asset amount into the accounting unit:
// rawAmount * answer / 10^decimals. The reading must be fresh within the
// binding's tolerance and the result must stay within the supported range.
func (s *Service) Normalize(assetKind string, rawAmount decimal.Decimal) (decimal.Decimal, error) {
	binding, round, err := s.latestRound(assetKind)
	if err != nil {
		return decimal.Zero, err
	}

	normalized := rawAmount.Mul(round.Answer).Shift(-binding.Decimals)
	if normalized.Abs().GreaterThan(maxNormalizedValue) {
		return decimal.Zero, fmt.Errorf("%w: %s %s normalizes outside supported range",
			types.ErrArithmeticOverflow, rawAmount, assetKind)
	}

	return normalized, nil
}

func (s *Service) latestRound(assetKind string) (*PriceFeedBinding, *FeedRound, error) {
	binding, err := s.db.GetBinding(assetKind)
	if err != nil {
		return nil, nil, err
	}
	if binding == nil {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrOracleUnavailable, assetKind)
	}

	round, err := s.db.LatestRound(binding.Source)
	if err != nil {
		return nil, nil, err
	}
	if round == nil || round.Answer.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: no usable reading from %s", types.ErrOracleUnavailable, binding.Source)
	}

	tolerance := time.Duration(binding.ToleranceSec) * time.Second
	if tolerance > 0 && s.now().Sub(round.PostedAt) > tolerance {
		return nil, nil, fmt.Errorf("%w: %s last reported at %s", types.ErrStalePrice,
			binding.Source, round.PostedAt.Format(time.RFC3339))
	}

	return binding, round, nil
}
