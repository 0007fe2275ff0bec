package orchestrator

import (
	"context"

	"github.com/shopspring/decimal"

	"fxtrader/internal/broker"
	"fxtrader/internal/models"
)

// Broker is the subset of broker.Client the orchestrator depends on.
// Kept as an interface, grounded on the same decoupling idiom as
// ens.BrokerSession, so entry/exit workflows are unit-testable against
// a fake.
type Broker interface {
	CheckExistingPositionsAndOrders(ctx context.Context, uic int) (present bool, summary string, err error)
	FetchPriceInfos(ctx context.Context, uics []int) (map[int]broker.PriceInfo, error)
	PlaceMarketOrderWithBrackets(ctx context.Context, uic int, side models.Side, amount decimal.Decimal, reference decimal.Decimal, slPips, tpPips decimal.Decimal, pipValue decimal.Decimal, decimals int32, externalRef string) (orderID string, err error)
	PlaceMarketOrder(ctx context.Context, uic int, side models.Side, amount decimal.Decimal, externalRef string) (orderID string, err error)
	FindOrderByExternalReference(ctx context.Context, extRef string) (*broker.OrderLookup, error)
	CheckOrderStatusViaAudit(ctx context.Context, orderID string) (*broker.AuditFillEvent, error)
	CancelRelatedOrdersForUIC(ctx context.Context, uic int) error
	ClosePositionMarket(ctx context.Context, positionID string, uic int, amount decimal.Decimal, originalSide models.Side, externalRef string) (orderID string, alreadyClosed bool, err error)
	ResolvePositionID(ctx context.Context, uic int) (string, error)
	ValidateTokenLiveness(ctx context.Context) error
}
