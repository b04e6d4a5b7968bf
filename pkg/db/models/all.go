package models

// All lists every persisted model in dependency order; tests feed it to AutoMigrate.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartLine{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&PendingCheckout{},
		&OutboxEvent{},
	}
}
