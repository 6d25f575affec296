// Package cart keeps a shopping cart per cookie session in Redis. Carts are
// never written to the relational store and expire with the session idle
// window.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaxQuantity caps a single cart line so subtotals cannot overflow.
const MaxQuantity = 999

var (
	// ErrInvalidQuantity is returned for a quantity below one or a line that
	// would exceed MaxQuantity.
	ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)
	// ErrProductUnavailable is returned by Add for inactive products.
	ErrProductUnavailable = errors.New("product is not available")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("cart store unavailable")
)

// Item is one cart line. UnitPrice is in minor currency units.
type Item struct {
	ID          int64     `json:"id,string"`
	ProductID   int64     `json:"productId"`
	ProductName string    `json:"productName"`
	UnitPrice   int64     `json:"unitPrice"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Subtotal is UnitPrice times Quantity.
func (i Item) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Catalog resolves products for Add. shopauth.Store satisfies it.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*shopauth.Product, error)
}

// Config holds the key prefix and idle lifetime.
type Config struct {
	KeyPrefix string
	TTL       time.Duration
	// NodeID is the snowflake node for item ids, 0..1023.
	NodeID int64
}

// Service reads and writes carts.
type Service struct {
	redis   redis.UniversalClient
	catalog Catalog
	node    *snowflake.Node
	config  Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Service. logger may be nil.
func New(redisClient redis.UniversalClient, catalog Catalog, cfg Config, logger *zap.Logger) (*Service, error) {
	if redisClient == nil || catalog == nil {
		return nil, errors.New("cart: redis client and catalog are required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("cart: ttl must be > 0")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "shopauth:cart"
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("cart: snowflake node: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		redis:   redisClient,
		catalog: catalog,
		node:    node,
		config:  cfg,
		logger:  logger.Named("cart"),
		now:     time.Now,
	}, nil
}

func (s *Service) key(sessionID string) string {
	return s.config.KeyPrefix + ":" + sessionID
}

// Items returns the cart lines in insertion order and renews the idle TTL.
// A missing or unreadable cart is empty.
func (s *Service) Items(ctx context.Context, sessionID string) ([]Item, error) {
	data, err := s.redis.GetEx(ctx, s.key(sessionID), s.config.TTL).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.decode(data), nil
}

func (s *Service) decode(data []byte) []Item {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Error("cart decode failed", zap.Error(err))
		return nil
	}
	return items
}

// Add puts quantity of productID in the cart, merging with an existing line
// for the same product.
func (s *Service) Add(ctx context.Context, sessionID string, productID int64, quantity int) (*Item, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, ErrProductUnavailable
	}

	var (
		added    Item
		overflow bool
	)
	err = s.update(ctx, sessionID, func(items []Item) []Item {
		overflow = false
		for i := range items {
			if items[i].ProductID == productID {
				if items[i].Quantity > MaxQuantity-quantity {
					overflow = true
					return items
				}
				items[i].Quantity += quantity
				added = items[i]
				return items
			}
		}
		added = Item{
			ID:          s.node.Generate().Int64(),
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    quantity,
			CreatedAt:   s.now().UTC(),
		}
		return append(items, added)
	})
	if err != nil {
		return nil, err
	}
	if overflow {
		return nil, ErrInvalidQuantity
	}
	return &added, nil
}

// Remove deletes a line. Unknown ids are ignored.
func (s *Service) Remove(ctx context.Context, sessionID string, itemID int64) error {
	return s.update(ctx, sessionID, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == itemID {
				return append(items[:i], items[i+1:]...)
			}
		}
		return items
	})
}

// UpdateQuantity sets a line's quantity. Quantities below one are ignored
// and quantities above MaxQuantity are rejected.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID string, itemID int64, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	if quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	return s.update(ctx, sessionID, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Quantity = quantity
			}
		}
		return items
	})
}

// Total sums line subtotals in minor units.
func (s *Service) Total(ctx context.Context, sessionID string) (int64, error) {
	items, err := s.Items(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total, nil
}

// Count sums quantities.
func (s *Service) Count(ctx context.Context, sessionID string) (int, error) {
	items, err := s.Items(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n, nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// update applies fn under WATCH so concurrent requests on one session do
// not lose lines. Every write renews the idle TTL.
func (s *Service) update(ctx context.Context, sessionID string, fn func([]Item) []Item) error {
	const maxRetries = 4
	key := s.key(sessionID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var items []Item
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				items = s.decode(data)
			}

			items = fn(items)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(items) == 0 {
					pipe.Del(ctx, key)
					return nil
				}
				out, err := json.Marshal(items)
				if err != nil {
					return err
				}
				pipe.Set(ctx, key, out, s.config.TTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: too much contention", ErrRedisUnavailable)
}
