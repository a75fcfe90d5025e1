package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the caller did not provide one. IDs are
// generated client side so the same models work on Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order. SQLite boots use it for
// AutoMigrate; Postgres schemas come from the goose migrations.
func All() []any {
	return []any{
		&User{},
		&Image{},
		&Category{},
		&Product{},
		&ProductCategory{},
		&ProductImage{},
		&CartLine{},
		&Address{},
		&Order{},
		&OrderItem{},
		&Carousel{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
