package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMaxAttempts = 16

type cartDocument struct {
	ID        string         `bson:"_id"`
	UserID    string         `bson:"user_id"`
	Items     []itemDocument `bson:"items"`
	Version   int64          `bson:"version"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type itemDocument struct {
	ProductID     string                `bson:"product_id"`
	Title         string                `bson:"title"`
	Category      string                `bson:"category"`
	Images        []string              `bson:"images"`
	Price         primitive.Decimal128  `bson:"price"`
	OriginalPrice *primitive.Decimal128 `bson:"original_price,omitempty"`
	Quantity      int                   `bson:"quantity"`
	AddedAt       time.Time             `bson:"added_at"`
}

// mongoRepository stores one document per user. Writes are optimistic: the
// document is replaced only if its version is still the one that was read.
type mongoRepository struct {
	collection  *mongo.Collection
	maxAttempts int
	now         func() time.Time
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection:  db.Collection("carts"),
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	doc, err := m.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

func (m *mongoRepository) find(ctx context.Context, userID string) (*cartDocument, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &doc, nil
}

func (m *mongoRepository) Update(ctx context.Context, userID string, mode Mode, fn MutateFunc) (*domain.Cart, error) {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		cart, found, err := m.load(ctx, userID, mode)
		if err != nil {
			return nil, err
		}

		expected := cart.Version
		if err := fn(cart); err != nil {
			return nil, err
		}
		now := m.now()
		cart.Version = expected + 1
		cart.UpdatedAt = now

		doc, err := fromDomain(cart)
		if err != nil {
			return nil, err
		}

		if !found {
			_, err := m.collection.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				continue // another request created the cart first
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create cart: %w", err)
			}
			return cart, nil
		}

		filter := bson.M{"user_id": userID, "version": expected}
		update := bson.M{
			"$set": bson.M{
				"items":      doc.Items,
				"version":    doc.Version,
				"updated_at": doc.UpdatedAt,
			},
		}
		result, err := m.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to update cart: %w", err)
		}
		if result.MatchedCount == 0 {
			continue // version moved on, re-read and apply again
		}
		return cart, nil
	}
	return nil, domain.ErrConcurrentModification
}

func (m *mongoRepository) load(ctx context.Context, userID string, mode Mode) (*domain.Cart, bool, error) {
	doc, err := m.find(ctx, userID)
	if err == nil {
		cart, convErr := doc.toDomain()
		return cart, true, convErr
	}
	if errors.Is(err, domain.ErrCartNotFound) && mode == CreateIfAbsent {
		cart := domain.NewCart(userID, m.now())
		cart.ID = uuid.NewString()
		return cart, false, nil
	}
	return nil, false, err
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

// EnsureIndexes creates the unique user index and the abandoned-cart TTL index.
func (m *mongoRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *mongoRepository) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}

func fromDomain(c *domain.Cart) (*cartDocument, error) {
	doc := &cartDocument{
		ID:        c.ID,
		UserID:    c.UserID,
		Items:     make([]itemDocument, 0, len(c.Items)),
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, it := range c.Items {
		price, err := primitive.ParseDecimal128(it.Price.String())
		if err != nil {
			return nil, fmt.Errorf("encode price of %s: %w", it.ProductID, err)
		}
		item := itemDocument{
			ProductID: it.ProductID,
			Title:     it.Title,
			Category:  it.Category,
			Images:    it.Images,
			Price:     price,
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		}
		if it.OriginalPrice.Valid {
			original, err := primitive.ParseDecimal128(it.OriginalPrice.Decimal.String())
			if err != nil {
				return nil, fmt.Errorf("encode original price of %s: %w", it.ProductID, err)
			}
			item.OriginalPrice = &original
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, nil
}

func (d *cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        d.ID,
		UserID:    d.UserID,
		Items:     make([]domain.LineItem, 0, len(d.Items)),
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, it := range d.Items {
		price, err := decimal.NewFromString(it.Price.String())
		if err != nil {
			return nil, fmt.Errorf("decode price of %s: %w", it.ProductID, err)
		}
		item := domain.LineItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Category:  it.Category,
			Images:    it.Images,
			Price:     price,
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		}
		if it.OriginalPrice != nil {
			original, err := decimal.NewFromString(it.OriginalPrice.String())
			if err != nil {
				return nil, fmt.Errorf("decode original price of %s: %w", it.ProductID, err)
			}
			item.OriginalPrice = decimal.NewNullDecimal(original)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}
