package tables

import (
	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/csv"
)

func init() {
	registerMovies()
}

// pipeLists reads genre and keyword cells such as Action|Adventure.
var pipeLists = func() *csv.Grammar {
	cfg := csv.DefaultConfig()
	cfg.ListSeparator = '|'
	return csv.MustNew(cfg)
}()

func person(name string) *core.Field {
	return core.Composite(name,
		core.String("name"),
		core.Optional(core.Int("facebookLikes")),
	)
}

// registerMovies registers the IMDB 5000 movie metadata layout, where people
// are spread over prefixed columns: director_name, actor_1_facebook_likes.
func registerMovies() {
	core.Register(core.Definition{
		Name:        "movies",
		Description: "IMDB movie metadata with director and top-billed actors",
		Schema: core.Composite("movie",
			core.String("movieTitle"),
			core.Optional(core.Int("titleYear")),
			core.List("genres", core.StringType),
			core.List("plotKeywords", core.StringType),
			core.Optional(core.Int("duration")),
			core.Optional(core.Float("imdbScore")),
			core.Optional(core.Decimal("gross")),
			person("director").Prefixed(),
			core.Repeated("actors", person("actor"), "actor1", "actor2", "actor3"),
		),
		Naming: core.Naming{
			Renames:  map[string]string{"facebookLikes": "facebook_likes"},
			Mapper:   core.CamelToSnake,
			Template: "$x_$c",
		},
		Grammar: pipeLists,
	})
}
