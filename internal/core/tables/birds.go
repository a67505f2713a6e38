package tables

import "github.com/JonMunkholm/csvtable/internal/core"

func init() {
	registerBirdCounts()
	registerContacts()
}

func registerBirdCounts() {
	core.Register(core.Definition{
		Name:        "birds",
		Description: "Bird survey counts per species",
		Schema: core.Composite("sighting",
			core.String("species"),
			core.Int("count"),
			core.Optional(core.Date("observedOn")),
			core.Optional(core.Decimal("weightKg")),
		),
		Naming: core.Naming{Mapper: core.CamelToSnake},
	})
}

func registerContacts() {
	core.Register(core.Definition{
		Name:        "contacts",
		Description: "Customer contacts with a normalized US address",
		Schema: core.Composite("contact",
			core.UUID("id"),
			core.String("name"),
			core.Composite("address",
				core.String("line1").As("line 1"),
				core.String("city"),
				core.Leaf("region", UsStateType),
				core.Optional(core.String("postalCode")),
			).Prefixed(),
			core.Optional(core.Bool("active")),
		),
		// Matches headers such as "Customer address city".
		Naming: core.Naming{
			Mapper:   core.CamelToWords,
			Template: "$x $c",
			Renames:  map[string]string{"address": "customer address"},
		},
	})
}
