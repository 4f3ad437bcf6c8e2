package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table names a remote table. Local collections share the same names.
type Table string

const (
	TableTenants       Table = "tenants"
	TableUsers         Table = "users"
	TableSubscriptions Table = "subscriptions"
	TableProducts      Table = "products"
	TableCustomers     Table = "customers"
	TableSuppliers     Table = "suppliers"
	TableSales         Table = "sales"
	TableSaleItems     Table = "sale_items"
	TableEmployees     Table = "employees"
	TableCategories    Table = "categories"
	TableComplaints    Table = "complaints"
	TablePayments      Table = "payments"
	TableHeartbeat     Table = "heartbeat"
)

// TenantCollections are the tenant-scoped collections mirrored in the local
// cache and refreshed by a pull.
var TenantCollections = []Table{
	TableUsers,
	TableSubscriptions,
	TableProducts,
	TableCustomers,
	TableSuppliers,
	TableSales,
	TableSaleItems,
	TableEmployees,
	TableCategories,
	TableComplaints,
	TablePayments,
}

func ValidTable(t string) bool {
	switch Table(t) {
	case TableTenants, TableUsers, TableSubscriptions, TableProducts, TableCustomers,
		TableSuppliers, TableSales, TableSaleItems, TableEmployees, TableCategories,
		TableComplaints, TablePayments, TableHeartbeat:
		return true
	}
	return false
}

// TenantScoped reports whether rows of the table carry a tenant_id column.
func (t Table) TenantScoped() bool {
	return t != TableTenants && t != TableHeartbeat
}

// Payload is the tagged variant carried by cache records and queue entries.
// The tag is Table(); each table has exactly one concrete type.
type Payload interface {
	Table() Table
	EntityID() string
	WithID(id string) Payload
	WithTenant(tenantID string) Payload
}

// TenantOwned is implemented by payloads stored under a tenant namespace.
type TenantOwned interface {
	Payload
	OwnerTenant() string
}

// DecodePayload decodes raw JSON into the concrete type registered for table.
func DecodePayload(table Table, raw []byte) (Payload, error) {
	switch table {
	case TableTenants:
		return decodeAs[Tenant](raw)
	case TableUsers:
		return decodeAs[User](raw)
	case TableSubscriptions:
		return decodeAs[Subscription](raw)
	case TableProducts:
		return decodeAs[Product](raw)
	case TableCustomers:
		return decodeAs[Customer](raw)
	case TableSuppliers:
		return decodeAs[Supplier](raw)
	case TableSales:
		return decodeAs[Sale](raw)
	case TableSaleItems:
		return decodeAs[SaleItem](raw)
	case TableEmployees:
		return decodeAs[Employee](raw)
	case TableCategories:
		return decodeAs[Category](raw)
	case TableComplaints:
		return decodeAs[Complaint](raw)
	case TablePayments:
		return decodeAs[Payment](raw)
	case TableHeartbeat:
		return decodeAs[Heartbeat](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
}

func decodeAs[T Payload](raw []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}

// Entity ids are strings rather than uuid.UUID: rows created by older clients
// may carry local ids, and the queue must be able to hold them in order to
// reject them.

type User struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Subscription struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenantId"`
	Plan     Plan       `json:"plan"`
	Status   string     `json:"status"`
	Amount   float64    `json:"amount"`
	StartsAt time.Time  `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

type Product struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku,omitempty"`
	Barcode      string    `json:"barcode,omitempty"`
	CategoryID   string    `json:"categoryId,omitempty"`
	Price        float64   `json:"price"`
	Cost         float64   `json:"cost"`
	Stock        int       `json:"stock"`
	ReorderLevel int       `json:"reorderLevel"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Customer struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	LoyaltyPoints int       `json:"loyaltyPoints"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Supplier struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	ContactName string    `json:"contactName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Sale struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	CustomerID    string    `json:"customerId,omitempty"`
	CashierID     string    `json:"cashierId,omitempty"`
	ReceiptNumber string    `json:"receiptNumber"`
	Subtotal      float64   `json:"subtotal"`
	Tax           float64   `json:"tax"`
	Discount      float64   `json:"discount"`
	Total         float64   `json:"total"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

type SaleItem struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenantId"`
	SaleID    string  `json:"saleId"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

type Employee struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Salary    float64   `json:"salary"`
	HiredAt   time.Time `json:"hiredAt"`
}

type Category struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Complaint struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	CustomerID  string    `json:"customerId,omitempty"`
	Subject     string    `json:"subject"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Payment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Reference string    `json:"reference"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paidAt"`
}

// Heartbeat rows exist only to be read by reachability probes.
type Heartbeat struct {
	ID        string    `json:"id"`
	CheckedAt time.Time `json:"checkedAt"`
}

func (u User) Table() Table { return TableUsers }
func (u User) EntityID() string { return u.ID }
func (u User) OwnerTenant() string { return u.TenantID }
func (u User) WithID(id string) Payload { u.ID = id; return u }
func (u User) WithTenant(id string) Payload { u.TenantID = id; return u }

func (s Subscription) Table() Table { return TableSubscriptions }
func (s Subscription) EntityID() string { return s.ID }
func (s Subscription) OwnerTenant() string { return s.TenantID }
func (s Subscription) WithID(id string) Payload { s.ID = id; return s }
func (s Subscription) WithTenant(id string) Payload { s.TenantID = id; return s }

func (p Product) Table() Table { return TableProducts }
func (p Product) EntityID() string { return p.ID }
func (p Product) OwnerTenant() string { return p.TenantID }
func (p Product) WithID(id string) Payload { p.ID = id; return p }
func (p Product) WithTenant(id string) Payload { p.TenantID = id; return p }

func (c Customer) Table() Table { return TableCustomers }
func (c Customer) EntityID() string { return c.ID }
func (c Customer) OwnerTenant() string { return c.TenantID }
func (c Customer) WithID(id string) Payload { c.ID = id; return c }
func (c Customer) WithTenant(id string) Payload { c.TenantID = id; return c }

func (s Supplier) Table() Table { return TableSuppliers }
func (s Supplier) EntityID() string { return s.ID }
func (s Supplier) OwnerTenant() string { return s.TenantID }
func (s Supplier) WithID(id string) Payload { s.ID = id; return s }
func (s Supplier) WithTenant(id string) Payload { s.TenantID = id; return s }

func (s Sale) Table() Table { return TableSales }
func (s Sale) EntityID() string { return s.ID }
func (s Sale) OwnerTenant() string { return s.TenantID }
func (s Sale) WithID(id string) Payload { s.ID = id; return s }
func (s Sale) WithTenant(id string) Payload { s.TenantID = id; return s }

func (i SaleItem) Table() Table { return TableSaleItems }
func (i SaleItem) EntityID() string { return i.ID }
func (i SaleItem) OwnerTenant() string { return i.TenantID }
func (i SaleItem) WithID(id string) Payload { i.ID = id; return i }
func (i SaleItem) WithTenant(id string) Payload { i.TenantID = id; return i }

func (e Employee) Table() Table { return TableEmployees }
func (e Employee) EntityID() string { return e.ID }
func (e Employee) OwnerTenant() string { return e.TenantID }
func (e Employee) WithID(id string) Payload { e.ID = id; return e }
func (e Employee) WithTenant(id string) Payload { e.TenantID = id; return e }

func (c Category) Table() Table { return TableCategories }
func (c Category) EntityID() string { return c.ID }
func (c Category) OwnerTenant() string { return c.TenantID }
func (c Category) WithID(id string) Payload { c.ID = id; return c }
func (c Category) WithTenant(id string) Payload { c.TenantID = id; return c }

func (c Complaint) Table() Table { return TableComplaints }
func (c Complaint) EntityID() string { return c.ID }
func (c Complaint) OwnerTenant() string { return c.TenantID }
func (c Complaint) WithID(id string) Payload { c.ID = id; return c }
func (c Complaint) WithTenant(id string) Payload { c.TenantID = id; return c }

func (p Payment) Table() Table { return TablePayments }
func (p Payment) EntityID() string { return p.ID }
func (p Payment) OwnerTenant() string { return p.TenantID }
func (p Payment) WithID(id string) Payload { p.ID = id; return p }
func (p Payment) WithTenant(id string) Payload { p.TenantID = id; return p }

func (h Heartbeat) Table() Table { return TableHeartbeat }
func (h Heartbeat) EntityID() string { return h.ID }
func (h Heartbeat) WithID(id string) Payload { h.ID = id; return h }
func (h Heartbeat) WithTenant(id string) Payload { return h }
