package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActiveTenantReader supplies the tenant whose settings (tax rate, in
// percent) apply to a sale.
type ActiveTenantReader interface {
	ActiveTenant() (domain.Tenant, bool)
}

// SaleService records point-of-sale transactions through the write path, so
// a sale made offline is visible at once and replayed later.
type SaleService struct {
	records *RecordService
	tenants ActiveTenantReader
	logger  *zap.Logger
}

func NewSaleService(records *RecordService, tenants ActiveTenantReader, logger *zap.Logger) *SaleService {
	return &SaleService{records: records, tenants: tenants, logger: logger}
}

// RecordSale computes totals from the items, stores the sale and its items,
// and decrements stock of the products sold. Remote writes are queued in
// that order.
func (s *SaleService) RecordSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem) (domain.Sale, []domain.SaleItem, error) {
	if len(items) == 0 {
		return domain.Sale{}, nil, ErrEmptySale
	}
	if sale.ID != "" && !ValidIdentifier(sale.ID) {
		return domain.Sale{}, nil, fmt.Errorf("%w: sale %q", domain.ErrInvalidIdentifier, sale.ID)
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return domain.Sale{}, nil, fmt.Errorf("%w: item %q quantity %d price %.2f",
				domain.ErrInvalidPayload, it.Name, it.Quantity, it.UnitPrice)
		}
		if it.ID != "" && !ValidIdentifier(it.ID) {
			return domain.Sale{}, nil, fmt.Errorf("%w: sale item %q", domain.ErrInvalidIdentifier, it.ID)
		}
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = "completed"
	}
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = "cash"
	}
	if sale.ReceiptNumber == "" {
		sale.ReceiptNumber = receiptNumber(sale)
	}

	var subtotal float64
	for i := range items {
		items[i].SaleID = sale.ID
		items[i].LineTotal = roundCents(float64(items[i].Quantity) * items[i].UnitPrice)
		subtotal += items[i].LineTotal
	}
	sale.Subtotal = roundCents(subtotal)
	if t, ok := s.tenants.ActiveTenant(); ok {
		sale.Tax = roundCents(sale.Subtotal * t.Settings.TaxRate / 100)
	}
	sale.Total = roundCents(sale.Subtotal + sale.Tax - sale.Discount)

	created, err := s.records.Create(ctx, sale)
	if err != nil {
		return domain.Sale{}, nil, fmt.Errorf("record sale: %w", err)
	}
	sale = created.(domain.Sale)

	for i := range items {
		p, err := s.records.Create(ctx, items[i])
		if err != nil {
			s.withdraw(ctx, sale, items[:i])
			return domain.Sale{}, nil, fmt.Errorf("record sale item: %w", err)
		}
		items[i] = p.(domain.SaleItem)
	}

	s.decrementStock(ctx, items)

	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("tenant_id", sale.TenantID),
		zap.Int("items", len(items)),
		zap.Float64("total", sale.Total))
	return sale, items, nil
}

// withdraw removes a partly recorded sale, items first. Each removal is
// queued, so a replica that already received the creates converges too.
func (s *SaleService) withdraw(ctx context.Context, sale domain.Sale, items []domain.SaleItem) {
	for i := len(items) - 1; i >= 0; i-- {
		if err := s.records.Delete(ctx, domain.TableSaleItems, items[i].ID); err != nil {
			s.logger.Warn("failed to withdraw sale item", zap.String("sale_id", sale.ID), zap.String("item_id", items[i].ID), zap.Error(err))
		}
	}
	if err := s.records.Delete(ctx, domain.TableSales, sale.ID); err != nil {
		s.logger.Warn("failed to withdraw sale", zap.String("sale_id", sale.ID), zap.Error(err))
	}
}

// decrementStock updates products sold by id. Ad-hoc items without a cached
// product are left alone; stock may go negative while offline.
func (s *SaleService) decrementStock(ctx context.Context, items []domain.SaleItem) {
	sold := make(map[string]int)
	var order []string
	for _, it := range items {
		if it.ProductID == "" {
			continue
		}
		if _, seen := sold[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		sold[it.ProductID] += it.Quantity
	}

	for _, id := range order {
		p, err := s.records.Get(ctx, domain.TableProducts, id)
		if err != nil {
			s.logger.Debug("sold item has no cached product", zap.String("product_id", id))
			continue
		}
		product := p.(domain.Product)
		product.Stock -= sold[id]
		product.UpdatedAt = time.Now().UTC()
		if _, err := s.records.Update(ctx, product); err != nil {
			s.logger.Warn("failed to decrement stock", zap.String("product_id", id), zap.Error(err))
		}
	}
}

func receiptNumber(sale domain.Sale) string {
	short := strings.ToUpper(strings.ReplaceAll(sale.ID, "-", ""))
	if len(short) > 6 {
		short = short[:6]
	}
	return fmt.Sprintf("R-%s-%s", sale.CreatedAt.Format("20060102"), short)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
