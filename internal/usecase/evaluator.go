package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
)

// Resolution is the terminal outcome decided for a pending signal.
type Resolution struct {
	State models.State
	Price decimal.Decimal
	At    time.Time
}

// Evaluate decides whether a pending signal resolves at price (nil when no market
// data is available). A price through both target and stop resolves hit_stop.
// It returns false when the signal stays pending.
func Evaluate(sig *models.Signal, price *decimal.Decimal, now time.Time) (Resolution, bool) {
	if sig == nil || sig.State != models.StatePending {
		return Resolution{}, false
	}

	if price != nil {
		hitTarget, hitStop := crossed(sig, *price)
		switch {
		case hitStop:
			return Resolution{State: models.StateHitStop, Price: *price, At: now}, true
		case hitTarget:
			return Resolution{State: models.StateHitTarget, Price: *price, At: now}, true
		}
	}

	if sig.Expired(now) {
		return Resolution{State: models.StateExpired, Price: expiryPrice(sig, price), At: now}, true
	}
	return Resolution{}, false
}

// EvaluateTicks evaluates a batch of ticks in timestamp order. Ticks at or after
// expires_at are ignored. A stop crossing anywhere in the batch wins over an
// earlier target crossing and resolves at the first stop tick; otherwise the
// first target tick resolves. When neither is crossed, the signal is checked for
// expiry at now, priced at the last tick seen before expiry.
func EvaluateTicks(sig *models.Signal, ticks []models.PriceTick, now time.Time) (Resolution, bool) {
	if sig == nil || sig.State != models.StatePending {
		return Resolution{}, false
	}
	var (
		last   *decimal.Decimal
		target *Resolution
	)
	for _, t := range ticks {
		if sig.Expired(t.Timestamp) {
			break
		}
		p := t.Price
		hitTarget, hitStop := crossed(sig, p)
		if hitStop {
			return Resolution{State: models.StateHitStop, Price: p, At: t.Timestamp}, true
		}
		if hitTarget && target == nil {
			target = &Resolution{State: models.StateHitTarget, Price: p, At: t.Timestamp}
		}
		last = &p
	}
	if target != nil {
		return *target, true
	}
	if sig.Expired(now) {
		return Resolution{State: models.StateExpired, Price: expiryPrice(sig, last), At: now}, true
	}
	return Resolution{}, false
}

func crossed(sig *models.Signal, price decimal.Decimal) (hitTarget, hitStop bool) {
	switch sig.Direction {
	case models.DirectionLong:
		return price.GreaterThanOrEqual(sig.TargetPrice), price.LessThanOrEqual(sig.StopPrice)
	case models.DirectionShort:
		return price.LessThanOrEqual(sig.TargetPrice), price.GreaterThanOrEqual(sig.StopPrice)
	}
	return false, false
}

func expiryPrice(sig *models.Signal, price *decimal.Decimal) decimal.Decimal {
	switch {
	case price != nil:
		return *price
	case sig.LastPrice != nil:
		return *sig.LastPrice
	default:
		return sig.EntryPrice
	}
}
