package risk

// Reason names the check that rejected a trade. The empty Reason means the
// trade was allowed.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonHalted          Reason = "halted"
	ReasonDailyLossLimit  Reason = "daily_loss_limit"
	ReasonDailyTradeLimit Reason = "daily_trade_limit"
	ReasonSizeTooSmall    Reason = "size_too_small"
	ReasonSizeTooLarge    Reason = "size_too_large"
	ReasonPriceTooLow     Reason = "price_too_low"
	ReasonPriceTooHigh    Reason = "price_too_high"
	ReasonMaxPositions    Reason = "max_positions"
	ReasonMarketExposure  Reason = "market_exposure"
	ReasonTotalExposure   Reason = "total_exposure"
	ReasonGlobalCooldown  Reason = "global_cooldown"
	ReasonMarketCooldown  Reason = "market_cooldown"
)

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func reject(reason Reason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}
