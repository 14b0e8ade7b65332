// Package mongo is the document-database record store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

const (
	transactionsCollection = "transactions"
	budgetsCollection      = "budgets"
)

type Store struct {
	client       *mongo.Client
	transactions *mongo.Collection
	budgets      *mongo.Collection
	now          func() time.Time
}

var _ store.RecordStore = (*Store)(nil)

// Config selects the server and database.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Open connects, verifies the server answers and ensures indexes exist.
// Connection failures are reported as store.ErrUnavailable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", store.ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %v", store.ErrUnavailable, err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:       client,
		transactions: db.Collection(transactionsCollection),
		budgets:      db.Collection(budgetsCollection),
		now:          time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.budgets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "category", Value: 1}, {Key: "month", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("category_month_unique"),
	})
	if err != nil {
		return fmt.Errorf("create budget index: %w", err)
	}
	_, err = s.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create transaction index: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "mongo" }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type transactionDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Type        string               `bson:"type"`
	Description string               `bson:"description"`
	Date        time.Time            `bson:"date"`
	Category    string               `bson:"category"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

type budgetDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Category  string               `bson:"category"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Month     string               `bson:"month"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode amount %s: %w", v, err)
	}
	return d, nil
}

// transactionToDoc truncates the date to milliseconds, the BSON date
// precision, so the record returned on write matches later reads.
func transactionToDoc(tx core.Transaction) (transactionDoc, error) {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return transactionDoc{}, err
	}
	doc := transactionDoc{
		Amount:      amount,
		Type:        string(tx.Type),
		Description: tx.Description,
		Date:        tx.Date.Truncate(time.Millisecond),
		Category:    tx.Category,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.ID != "" {
		oid, err := primitive.ObjectIDFromHex(tx.ID)
		if err != nil {
			return transactionDoc{}, fmt.Errorf("transaction id %q: %w", tx.ID, err)
		}
		doc.ID = oid
	}
	return doc, nil
}

func (d transactionDoc) toCore() (core.Transaction, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          d.ID.Hex(),
		Amount:      amount,
		Type:        core.TransactionType(d.Type),
		Description: d.Description,
		Date:        d.Date.Local(),
		Category:    d.Category,
		CreatedAt:   d.CreatedAt.Local(),
		UpdatedAt:   d.UpdatedAt.Local(),
	}, nil
}

func (d budgetDoc) toCore() (core.Budget, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{
		ID:        d.ID.Hex(),
		Category:  d.Category,
		Amount:    amount,
		Month:     d.Month,
		CreatedAt: d.CreatedAt.Local(),
		UpdatedAt: d.UpdatedAt.Local(),
	}, nil
}

// objectID parses a hex id; malformed ids cannot exist, so they are not found.
func objectID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return oid, nil
}

// timestamp is now truncated to the millisecond precision BSON dates keep.
func (s *Store) timestamp() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	cur, err := s.transactions.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(docs))
	for _, d := range docs {
		tx, err := d.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	oid, err := objectID("transaction", id)
	if err != nil {
		return core.Transaction{}, err
	}
	var doc transactionDoc
	err = s.transactions.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return doc.toCore()
}

func (s *Store) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := s.timestamp()
	tx.ID = primitive.NewObjectID().Hex()
	tx.CreatedAt, tx.UpdatedAt = now, now

	doc, err := transactionToDoc(tx)
	if err != nil {
		return core.Transaction{}, err
	}
	if _, err := s.transactions.InsertOne(ctx, doc); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return doc.toCore()
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	current, err := s.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	updated := patch.Apply(current).Normalize()
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	updated.UpdatedAt = s.timestamp()

	doc, err := transactionToDoc(updated)
	if err != nil {
		return core.Transaction{}, err
	}
	res, err := s.transactions.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{
		"amount":      doc.Amount,
		"type":        doc.Type,
		"description": doc.Description,
		"date":        doc.Date,
		"category":    doc.Category,
		"updatedAt":   doc.UpdatedAt,
	}})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return doc.toCore()
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	oid, err := objectID("transaction", id)
	if err != nil {
		return err
	}
	res, err := s.transactions.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListBudgets(ctx context.Context, month string) ([]core.Budget, error) {
	filter := bson.M{}
	if month = strings.TrimSpace(month); month != "" {
		filter["month"] = month
	}
	cur, err := s.budgets.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "month", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	var docs []budgetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode budgets: %w", err)
	}
	out := make([]core.Budget, 0, len(docs))
	for _, d := range docs {
		b, err := d.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	oid, err := objectID("budget", id)
	if err != nil {
		return core.Budget{}, err
	}
	return s.findBudget(ctx, bson.M{"_id": oid}, id)
}

func (s *Store) findBudget(ctx context.Context, filter bson.M, label string) (core.Budget, error) {
	var doc budgetDoc
	err := s.budgets.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", label, store.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s: %w", label, err)
	}
	return doc.toCore()
}

// UpsertBudget is a single upsert:true update against the unique
// (category, month) index. A racing insert that loses on the index is
// retried once as a plain update.
func (s *Store) UpsertBudget(ctx context.Context, category, month string, amount decimal.Decimal) (core.Budget, bool, error) {
	b := core.Budget{Category: category, Month: month, Amount: amount}.Normalize()
	if err := b.Validate(); err != nil {
		return core.Budget{}, false, err
	}
	amt, err := toDecimal128(b.Amount)
	if err != nil {
		return core.Budget{}, false, err
	}
	now := s.timestamp()
	filter := bson.M{"category": b.Category, "month": b.Month}
	update := bson.M{
		"$set":         bson.M{"amount": amt, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}

	res, err := s.budgets.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		res, err = s.budgets.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("upsert budget %s/%s: %w", b.Category, b.Month, err)
	}

	saved, err := s.findBudget(ctx, filter, b.Category+"/"+b.Month)
	if err != nil {
		return core.Budget{}, false, err
	}
	return saved, res.UpsertedCount > 0, nil
}

func (s *Store) UpdateBudget(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error) {
	current, err := s.GetBudget(ctx, id)
	if err != nil {
		return core.Budget{}, err
	}
	updated := patch.Apply(current).Normalize()
	if err := updated.Validate(); err != nil {
		return core.Budget{}, err
	}
	amt, err := toDecimal128(updated.Amount)
	if err != nil {
		return core.Budget{}, err
	}
	updated.UpdatedAt = s.timestamp()

	oid, _ := primitive.ObjectIDFromHex(id)
	res, err := s.budgets.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"category":  updated.Category,
		"month":     updated.Month,
		"amount":    amt,
		"updatedAt": updated.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return core.Budget{}, fmt.Errorf("budget %s/%s: %w", updated.Category, updated.Month, store.ErrConflict)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	return updated, nil
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	oid, err := objectID("budget", id)
	if err != nil {
		return err
	}
	res, err := s.budgets.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	return nil
}
