package domain

// OrderSide is the side of an order (buy or sell).
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// StopDirection is the trigger direction of a stop order: "up" triggers when
// the price rises to the stop price, "down" when it falls to it.
type StopDirection string

const (
	StopUp   StopDirection = "up"
	StopDown StopDirection = "down"
)

// Order is one leg of an order plan, expressed in exchange contract units.
type Order struct {
	ClientOID string
	Symbol    string
	Side      OrderSide
	Type      OrderType // limit or market
	Price     float64   // 0 for market orders
	Size      int64     // whole contract lots
	Leverage  int
	Stop      StopDirection // empty for plain (non-stop) orders
	StopPrice float64       // trigger price, set when Stop is set
	Close     bool          // close-position order
}

// IsStop reports whether the order is a stop (trigger) order.
func (o *Order) IsStop() bool {
	return o.Stop != ""
}

// OrderPlan is the concrete order set derived from one (signal, user) pair.
// It is ephemeral: built during dispatch, never persisted.
type OrderPlan struct {
	Entry       Order
	TakeProfits []Order // in target order; zero-size legs already dropped
	StopLoss    Order
}

// Legs returns the plan's orders in submission order:
// entry, take-profits, stop-loss.
func (p *OrderPlan) Legs() []Order {
	legs := make([]Order, 0, len(p.TakeProfits)+2)
	legs = append(legs, p.Entry)
	legs = append(legs, p.TakeProfits...)
	legs = append(legs, p.StopLoss)
	return legs
}
