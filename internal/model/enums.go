package model

// Side of an order or position.
type Side int

const (
	SideLong Side = iota
	SideShort
)

// ParseSide accepts the exchange spelling (BUY/SELL) and the internal one (Long/Short).
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "Long", "LONG":
		return SideLong, nil
	case "SELL", "Short", "SHORT":
		return SideShort, nil
	}
	return 0, invalidEnum("side", s)
}

func (s Side) String() string {
	if s == SideShort {
		return "Short"
	}
	return "Long"
}

// Binance returns the exchange spelling.
func (s Side) Binance() string {
	if s == SideShort {
		return "SELL"
	}
	return "BUY"
}

// OrderType as reported by the exchange.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeStopLoss
	OrderTypeStopLossLimit
	OrderTypeTakeProfit
	OrderTypeTakeProfitLimit
	OrderTypeLimitMaker
)

var orderTypeNames = map[OrderType]string{
	OrderTypeLimit:           "LIMIT",
	OrderTypeMarket:          "MARKET",
	OrderTypeStopLoss:        "STOP_LOSS",
	OrderTypeStopLossLimit:   "STOP_LOSS_LIMIT",
	OrderTypeTakeProfit:      "TAKE_PROFIT",
	OrderTypeTakeProfitLimit: "TAKE_PROFIT_LIMIT",
	OrderTypeLimitMaker:      "LIMIT_MAKER",
}

// ParseOrderType parses the exchange order type string.
func ParseOrderType(s string) (OrderType, error) {
	for t, name := range orderTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, invalidEnum("order type", s)
}

func (t OrderType) String() string {
	if name, ok := orderTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// OrderStatus as reported by the exchange.
type OrderStatus int

const (
	StatusNew OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusPendingCancel
	StatusRejected
	StatusExpired
	StatusExpiredInMatch
)

// ParseOrderStatus parses the exchange status string. "TRADE" (an execution
// type that shows up in the same field on some payloads) maps to Filled.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "NEW":
		return StatusNew, nil
	case "PARTIALLY_FILLED":
		return StatusPartiallyFilled, nil
	case "FILLED", "TRADE":
		return StatusFilled, nil
	case "CANCELED":
		return StatusCanceled, nil
	case "PENDING_CANCEL":
		return StatusPendingCancel, nil
	case "REJECTED":
		return StatusRejected, nil
	case "EXPIRED":
		return StatusExpired, nil
	case "EXPIRED_IN_MATCH":
		return StatusExpiredInMatch, nil
	}
	return 0, invalidEnum("order status", s)
}

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusPendingCancel:
		return "PENDING_CANCEL"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	case StatusExpiredInMatch:
		return "EXPIRED_IN_MATCH"
	default:
		return "UNKNOWN"
	}
}

// Working reports whether the order may still fill.
func (s OrderStatus) Working() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

func (s Side) MarshalText() ([]byte, error)        { return []byte(s.String()), nil }
func (t OrderType) MarshalText() ([]byte, error)   { return []byte(t.String()), nil }
func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
