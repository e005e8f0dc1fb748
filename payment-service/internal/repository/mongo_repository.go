package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ordersCollection = "orders"

type orderItemDoc struct {
	Kind      string               `bson:"kind"`
	RefID     string               `bson:"ref_id"`
	Name      string               `bson:"name"`
	Quantity  int                  `bson:"quantity"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	Image     string               `bson:"image,omitempty"`
}

type addressDoc struct {
	FullName   string `bson:"full_name"`
	Street     string `bson:"street"`
	City       string `bson:"city"`
	State      string `bson:"state"`
	PostalCode string `bson:"postal_code"`
	Country    string `bson:"country"`
}

type outboxDoc struct {
	ID          string     `bson:"id"`
	AggregateID string     `bson:"aggregate_id"`
	EventType   string     `bson:"event_type"`
	Payload     []byte     `bson:"payload"`
	CreatedAt   time.Time  `bson:"created_at"`
	PublishedAt *time.Time `bson:"published_at"`
}

type orderDoc struct {
	ID               string               `bson:"_id"`
	ReceiptNumber    string               `bson:"receipt_number"`
	UserID           string               `bson:"user_id"`
	Items            []orderItemDoc       `bson:"items"`
	Subtotal         primitive.Decimal128 `bson:"subtotal"`
	ShippingAmount   primitive.Decimal128 `bson:"shipping_amount"`
	TaxAmount        primitive.Decimal128 `bson:"tax_amount"`
	TotalAmount      primitive.Decimal128 `bson:"total_amount"`
	Currency         string               `bson:"currency"`
	ShippingAddress  addressDoc           `bson:"shipping_address"`
	PaymentMethod    string               `bson:"payment_method"`
	PaymentStatus    string               `bson:"payment_status"`
	Status           string               `bson:"status"`
	GatewayOrderID   string               `bson:"gateway_order_id"`
	GatewayPaymentID string               `bson:"gateway_payment_id"`
	GatewaySignature string               `bson:"gateway_signature"`
	PayerHandle      string               `bson:"payer_handle"`
	Outbox           []outboxDoc          `bson:"outbox"`
	CreatedAt        time.Time            `bson:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at"`
}

// MongoStore keeps each order's outbox events inside the order document, so a
// status change and its event are written by one single-document update.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(ordersCollection)}
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "receipt_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "outbox.id", Value: 1}}},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) Create(ctx context.Context, order *domain.Order) error {
	doc, err := toOrderDoc(order)
	if err != nil {
		return err
	}
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *MongoStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var doc orderDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return fromOrderDoc(&doc)
}

func (m *MongoStore) ConditionalUpdate(ctx context.Context, id string, expected domain.PaymentStatus, patch domain.OrderPatch) (*domain.Order, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.PaymentStatus != nil {
		set["payment_status"] = string(*patch.PaymentStatus)
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.GatewayOrderID != nil {
		set["gateway_order_id"] = *patch.GatewayOrderID
	}
	if patch.GatewayPaymentID != nil {
		set["gateway_payment_id"] = *patch.GatewayPaymentID
	}
	if patch.GatewaySignature != nil {
		set["gateway_signature"] = *patch.GatewaySignature
	}

	update := bson.M{"$set": set}
	if patch.Event != nil {
		update["$push"] = bson.M{"outbox": toOutboxDoc(patch.Event)}
	}

	filter := bson.M{"_id": id, "payment_status": string(expected)}
	if patch.UnreferencedOnly {
		filter["gateway_order_id"] = ""
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDoc
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}
		n, countErr := m.collection.CountDocuments(ctx, bson.M{"_id": id})
		if countErr != nil {
			return nil, fmt.Errorf("failed to check order existence: %w", countErr)
		}
		if n == 0 {
			return nil, ErrOrderNotFound
		}
		return nil, ErrConditionFailed
	}
	return fromOrderDoc(&doc)
}

func (m *MongoStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	filter := bson.M{
		"payment_status":   string(domain.PaymentStatusPending),
		"gateway_order_id": "",
		"created_at":       bson.M{"$lt": olderThan},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		order, err := fromOrderDoc(&doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return orders, nil
}

func (m *MongoStore) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.PaymentEvent, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"outbox": bson.M{"$elemMatch": bson.M{"published_at": nil}}}}},
		{{Key: "$unwind", Value: "$outbox"}},
		{{Key: "$match", Value: bson.M{"outbox.published_at": nil}}},
		{{Key: "$sort", Value: bson.D{{Key: "outbox.created_at", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$outbox"}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.PaymentEvent
	for cursor.Next(ctx) {
		var doc outboxDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, &domain.PaymentEvent{
			ID:          doc.ID,
			AggregateID: doc.AggregateID,
			EventType:   domain.EventType(doc.EventType),
			Payload:     doc.Payload,
			CreatedAt:   doc.CreatedAt,
			PublishedAt: doc.PublishedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return events, nil
}

func (m *MongoStore) MarkEventAsPublished(ctx context.Context, id string) error {
	filter := bson.M{"outbox.id": id}
	update := bson.M{"$set": bson.M{"outbox.$.published_at": time.Now().UTC()}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.collection.Database().Client().Disconnect(ctx)
}

func toOrderDoc(o *domain.Order) (*orderDoc, error) {
	doc := &orderDoc{
		ID:            o.ID,
		ReceiptNumber: o.ReceiptNumber,
		UserID:        o.UserID,
		Currency:      o.Currency,
		ShippingAddress: addressDoc{
			FullName:   o.ShippingAddress.FullName,
			Street:     o.ShippingAddress.Street,
			City:       o.ShippingAddress.City,
			State:      o.ShippingAddress.State,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		Status:           string(o.Status),
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		GatewaySignature: o.GatewaySignature,
		PayerHandle:      o.PayerHandle,
		Outbox:           []outboxDoc{},
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}

	var err error
	amounts := []struct {
		dst *primitive.Decimal128
		src decimal.Decimal
	}{
		{&doc.Subtotal, o.Subtotal},
		{&doc.ShippingAmount, o.ShippingAmount},
		{&doc.TaxAmount, o.TaxAmount},
		{&doc.TotalAmount, o.TotalAmount},
	}
	for _, a := range amounts {
		if *a.dst, err = toDecimal128(a.src); err != nil {
			return nil, err
		}
	}

	for _, item := range o.Items {
		price, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, orderItemDoc{
			Kind:      string(item.Kind),
			RefID:     item.RefID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: price,
			Image:     item.Image,
		})
	}
	return doc, nil
}

func fromOrderDoc(doc *orderDoc) (*domain.Order, error) {
	o := &domain.Order{
		ID:            doc.ID,
		ReceiptNumber: doc.ReceiptNumber,
		UserID:        doc.UserID,
		Currency:      doc.Currency,
		ShippingAddress: domain.ShippingAddress{
			FullName:   doc.ShippingAddress.FullName,
			Street:     doc.ShippingAddress.Street,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
		},
		PaymentMethod:    domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(doc.PaymentStatus),
		Status:           domain.OrderStatus(doc.Status),
		GatewayOrderID:   doc.GatewayOrderID,
		GatewayPaymentID: doc.GatewayPaymentID,
		GatewaySignature: doc.GatewaySignature,
		PayerHandle:      doc.PayerHandle,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}

	var err error
	amounts := []struct {
		dst *decimal.Decimal
		src primitive.Decimal128
	}{
		{&o.Subtotal, doc.Subtotal},
		{&o.ShippingAmount, doc.ShippingAmount},
		{&o.TaxAmount, doc.TaxAmount},
		{&o.TotalAmount, doc.TotalAmount},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.src.String()); err != nil {
			return nil, fmt.Errorf("failed to decode amount: %w", err)
		}
	}

	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("failed to decode unit price: %w", err)
		}
		o.Items = append(o.Items, domain.OrderItem{
			Kind:      domain.ItemKind(item.Kind),
			RefID:     item.RefID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: price,
			Image:     item.Image,
		})
	}
	return o, nil
}

func toOutboxDoc(ev *domain.PaymentEvent) outboxDoc {
	return outboxDoc{
		ID:          ev.ID,
		AggregateID: ev.AggregateID,
		EventType:   string(ev.EventType),
		Payload:     ev.Payload,
		CreatedAt:   ev.CreatedAt,
	}
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode amount %s: %w", d, err)
	}
	return v, nil
}
