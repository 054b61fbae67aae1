package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN string `envconfig:"DSN" required:"true"`
}

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID        string    `bun:"id,pk"`
	State     string    `bun:"state,notnull"`
	Metadata  Metadata  `bun:"metadata,type:jsonb"`
	Cart      Cart      `bun:"cart,type:jsonb"`
	Version   int64     `bun:"version,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:conversation_messages,alias:m"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Role           string    `bun:"role,notnull"`
	Content        string    `bun:"content,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type orderRow struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID             string    `bun:"id,pk"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Items          Cart      `bun:"items,type:jsonb"`
	Total          float64   `bun:"total,notnull"`
	DeliveryType   string    `bun:"delivery_type"`
	Address        string    `bun:"address"`
	PaymentMethod  string    `bun:"payment_method"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func (r *conversationRow) toConversation() *Conversation {
	conv := &Conversation{
		ID:        r.ID,
		State:     ConversationState(r.State),
		Metadata:  r.Metadata,
		Cart:      r.Cart,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
	conv.EnsureMetadata()
	return conv
}

func rowFromConversation(conv *Conversation) *conversationRow {
	return &conversationRow{
		ID:        conv.ID,
		State:     string(conv.State),
		Metadata:  conv.Metadata,
		Cart:      conv.Cart,
		Version:   conv.Version,
		UpdatedAt: conv.UpdatedAt,
	}
}

// PostgresStore persists conversations with bun. Updates seed the row if needed, then lock it
// with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db           *bun.DB
	historyLimit int
	now          func() time.Time
}

func NewPostgresStore(cfg PostgresConfig, opts ...StoreOption) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewPostgresStoreFromDB(sqldb, opts...), nil
}

func NewPostgresStoreFromDB(sqldb *sql.DB, opts ...StoreOption) *PostgresStore {
	o := defaultKVOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &PostgresStore{
		db:           bun.NewDB(sqldb, pgdialect.New()),
		historyLimit: o.historyLimit,
		now:          o.now,
	}
}

// InitSchema creates the tables if they are missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	models := []any{(*conversationRow)(nil), (*messageRow)(nil), (*orderRow)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidConversation
	}
	row := new(conversationRow)
	err := s.db.NewSelect().Model(row).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return row.toConversation(), nil
}

func (s *PostgresStore) AtomicUpdateCart(ctx context.Context, id string, op CartOp, item CartItem) (CartTotals, error) {
	conv, err := s.update(ctx, id, cartMutation(op, item))
	if err != nil {
		return CartTotals{}, err
	}
	return conv.Totals(), nil
}

func (s *PostgresStore) AtomicUpdateState(ctx context.Context, id string, newState ConversationState, patch Metadata) error {
	_, err := s.update(ctx, id, stateMutation(newState, patch, s.now))
	return err
}

func (s *PostgresStore) GetRecentHistory(ctx context.Context, id string, n int) ([]Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidConversation
	}
	if n <= 0 {
		n = s.historyLimit
	}
	var rows []messageRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("m.conversation_id = ?", id).
		OrderExpr("m.id DESC").
		Limit(n).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select history: %w", err)
	}

	out := make([]Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = Message{Role: row.Role, Content: row.Content, CreatedAt: row.CreatedAt}
	}
	return out, nil
}

func (s *PostgresStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidConversation
	}
	if len(msgs) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]messageRow, 0, len(msgs))
	for _, msg := range msgs {
		created := msg.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, messageRow{
			ConversationID: id,
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      created,
		})
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveOrder(ctx context.Context, order Order) error {
	if err := validateOrder(order); err != nil {
		return err
	}
	row := &orderRow{
		ID:             order.ID,
		ConversationID: order.ConversationID,
		Items:          order.Items,
		Total:          order.Total,
		DeliveryType:   order.DeliveryType,
		Address:        order.Address,
		PaymentMethod:  order.PaymentMethod,
		CreatedAt:      order.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) update(ctx context.Context, id string, mutate func(*Conversation) error) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidConversation
	}

	var out *Conversation
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// A missing row cannot be locked, so claim the id first. A concurrent first write
		// waits on the primary key until this transaction ends.
		seed := rowFromConversation(NewConversation(id, s.now()))
		if _, err := tx.NewInsert().Model(seed).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed conversation: %w", err)
		}

		row := new(conversationRow)
		if err := tx.NewSelect().Model(row).Where("c.id = ?", id).For("UPDATE").Scan(ctx); err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		conv := row.toConversation()

		if err := mutate(conv); err != nil {
			return err
		}
		conv.Version++
		conv.Touch(s.now())

		_, err := tx.NewUpdate().
			Model(rowFromConversation(conv)).
			Column("state", "metadata", "cart", "version", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		out = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
