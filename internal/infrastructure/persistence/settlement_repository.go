package persistence

import (
	"context"
	"fmt"
	"strings"

	appsettlement "github.com/erp/reconciler/internal/application/settlement"
	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// paginate runs one page of query and derives the page count from a COUNT
// over the same scope
func paginate[M any](query *gorm.DB, req appsettlement.PageRequest, order string) ([]M, *appsettlement.Pagination, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, nil, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = appsettlement.DefaultPageSize
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var rows []M
	if err := query.Session(&gorm.Session{}).
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return rows, &appsettlement.Pagination{Page: page, Pages: pages, Total: int(total)}, nil
}

// likePattern builds a case-insensitive LIKE pattern for a search term
func likePattern(search string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.ToLower(strings.TrimSpace(search))) + "%"
}

// GormMovementSource reads receipts or write-offs from the stock movement table
type GormMovementSource struct {
	db   *gorm.DB
	kind settlement.MovementKind
}

// NewGormMovementSource creates a page provider for one movement kind
func NewGormMovementSource(db *gorm.DB, kind settlement.MovementKind) *GormMovementSource {
	return &GormMovementSource{db: db, kind: kind}
}

// FetchPage implements application settlement.PageProvider
func (s *GormMovementSource) FetchPage(ctx context.Context, req appsettlement.PageRequest) (appsettlement.Page[settlement.Movement], error) {
	query := s.db.WithContext(ctx).Model(&models.StockMovementModel{}).Where("kind = ?", string(s.kind))
	f := req.Filter
	if f.From != nil {
		query = query.Where("occurred_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("occurred_at <= ?", *f.To)
	}
	if f.PartyID != "" {
		query = query.Where("party_id = ?", f.PartyID)
	}
	if strings.TrimSpace(f.Search) != "" {
		pattern := likePattern(f.Search)
		query = query.Where("(LOWER(party_name) LIKE ? OR LOWER(product_name) LIKE ?)", pattern, pattern)
	}

	rows, pagination, err := paginate[models.StockMovementModel](query, req, "occurred_at ASC, id ASC")
	if err != nil {
		return appsettlement.Page[settlement.Movement]{}, fmt.Errorf("failed to read %s movements: %w", s.kind, err)
	}

	items := make([]settlement.Movement, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return appsettlement.Page[settlement.Movement]{Success: true, Items: items, Pagination: pagination}, nil
}

// GormPaymentSource reads supplier payments
type GormPaymentSource struct {
	db *gorm.DB
}

// NewGormPaymentSource creates a payment page provider
func NewGormPaymentSource(db *gorm.DB) *GormPaymentSource {
	return &GormPaymentSource{db: db}
}

// FetchPage implements application settlement.PageProvider
func (s *GormPaymentSource) FetchPage(ctx context.Context, req appsettlement.PageRequest) (appsettlement.Page[settlement.Payment], error) {
	query := s.db.WithContext(ctx).Model(&models.PaymentModel{})
	f := req.Filter
	if f.From != nil {
		query = query.Where("paid_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("paid_at <= ?", *f.To)
	}
	if f.PartyID != "" {
		query = query.Where("party_id = ?", f.PartyID)
	}
	if strings.TrimSpace(f.Search) != "" {
		pattern := likePattern(f.Search)
		query = query.Where("(LOWER(party_name) LIKE ? OR LOWER(document_number) LIKE ?)", pattern, pattern)
	}

	rows, pagination, err := paginate[models.PaymentModel](query, req, "paid_at ASC, id ASC")
	if err != nil {
		return appsettlement.Page[settlement.Payment]{}, fmt.Errorf("failed to read payments: %w", err)
	}

	items := make([]settlement.Payment, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return appsettlement.Page[settlement.Payment]{Success: true, Items: items, Pagination: pagination}, nil
}

// NewGormSources wires the three transaction streams to the ERP tables
func NewGormSources(db *gorm.DB) appsettlement.Sources {
	return appsettlement.Sources{
		Receipts:  NewGormMovementSource(db, settlement.MovementKindReceipt),
		WriteOffs: NewGormMovementSource(db, settlement.MovementKindWriteOff),
		Payments:  NewGormPaymentSource(db),
	}
}

// GormPartyRepository reads the party register. It serves both the party
// directory and opening balances.
type GormPartyRepository struct {
	db *gorm.DB
}

// NewGormPartyRepository creates a new GormPartyRepository
func NewGormPartyRepository(db *gorm.DB) *GormPartyRepository {
	return &GormPartyRepository{db: db}
}

// PartyNames returns every registered party as id -> name
func (r *GormPartyRepository) PartyNames(ctx context.Context) (map[string]string, error) {
	var rows []models.PartyModel
	if err := r.db.WithContext(ctx).Select("id", "name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read party directory: %w", err)
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// OpeningBalances returns the opening balance of every id-based party in
// parties that is registered. Name-based parties have no register entry.
func (r *GormPartyRepository) OpeningBalances(ctx context.Context, parties []settlement.PartyID) (map[settlement.PartyID]decimal.Decimal, error) {
	ids := make([]string, 0, len(parties))
	for _, p := range parties {
		if p.Kind == settlement.PartyIDKindID {
			ids = append(ids, p.Value)
		}
	}
	balances := make(map[settlement.PartyID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return balances, nil
	}

	var rows []models.PartyModel
	if err := r.db.WithContext(ctx).
		Select("id", "opening_balance").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read opening balances: %w", err)
	}
	for _, row := range rows {
		balances[settlement.IDParty(row.ID)] = row.OpeningBalance
	}
	return balances, nil
}
