// Package testutil holds shared fixtures for package tests: an in-memory
// SQLite database with the full schema and seed helpers for catalog rows.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenDB opens a private in-memory SQLite database migrated with every model.
// A single connection keeps concurrent tests from tripping SQLite's table locks.
func OpenDB(t *testing.T) *db.Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db.Wrap(conn)
}

// MustCreateUser inserts a user with the given role.
func MustCreateUser(t *testing.T, conn *gorm.DB, role enums.Role) *models.User {
	t.Helper()
	user := &models.User{
		Email:        fmt.Sprintf("user_%s@example.com", uuid.NewString()[:8]),
		PasswordHash: "hash",
		Role:         role,
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateProduct inserts a product priced at price with an optional discount percentage.
func MustCreateProduct(t *testing.T, conn *gorm.DB, name, price string, discount string) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		HasDiscount: discount != "",
		Discount:    decimal.Zero,
	}
	if discount != "" {
		product.Discount = decimal.RequireFromString(discount)
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustCreateImage inserts an image row pointing at images/<name>.
func MustCreateImage(t *testing.T, conn *gorm.DB, name string) *models.Image {
	t.Helper()
	image := &models.Image{
		Path:        "images/" + uuid.NewString() + "_" + name,
		ContentType: "image/png",
		SizeBytes:   64,
	}
	if err := conn.Create(image).Error; err != nil {
		t.Fatalf("create image: %v", err)
	}
	return image
}

// MustCreateCategory inserts a category, optionally with an image.
func MustCreateCategory(t *testing.T, conn *gorm.DB, name string, image *models.Image) *models.Category {
	t.Helper()
	category := &models.Category{Name: name}
	if image != nil {
		id := image.ID
		category.ImageID = &id
	}
	if err := conn.Create(category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return category
}

// MustAddCartLine inserts a cart line directly.
func MustAddCartLine(t *testing.T, conn *gorm.DB, userID, productID uuid.UUID, qty int) *models.CartLine {
	t.Helper()
	line := &models.CartLine{UserID: userID, ProductID: productID, Quantity: qty}
	if err := conn.Create(line).Error; err != nil {
		t.Fatalf("create cart line: %v", err)
	}
	return line
}

// Count returns the number of rows of model.
func Count(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// PNG is a minimal valid PNG header followed by an IHDR chunk, enough for
// content sniffing.
var PNG = []byte{
	0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
	0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
}
