// Package core converts tokenized rows into typed records and back.
//
// The package is independent of any transport; the web layer, the loader and
// tests all drive it the same way.
//
// # Schemas
//
// A schema is an explicit tree of [Field] nodes. Leaves are parsed with a
// registered cell [Type]; internal nodes are composites, optional wrappers,
// repeated-with-prefix groups, discriminated unions and numbered sequences:
//
//	movie := core.Composite("movie",
//	    core.String("movieTitle"),
//	    core.Optional(core.Int("titleYear")),
//	    core.List("genres", core.StringType),
//	    core.Composite("director", core.String("name"), core.Int("facebookLikes")).Prefixed(),
//	    core.Repeated("actors", core.Composite("actor", core.String("name")), "actor1", "actor2"),
//	)
//
// Schemas are registered once per dataset with [Register].
//
// # Column Resolution
//
// [Naming] maps a field name to a header column: a rename table first, then
// a mapper such as [CamelToSnake]. Under a prefix the mapped name is
// substituted into a template, so with "$x_$c" the field facebookLikes of the
// director resolves to director_facebook_likes.
//
// # Building Tables
//
// A [Builder] reads the header, tokenizes each line with a csv.Grammar and
// converts it. Strict builds stop at the first failing row and return it as
// a [*Failure]; forgiving builds leave failing rows out of the table and
// report them in [Result.Failures], so that
//
//	res.Table.Len() + len(res.Failures) == res.Rows
//
// # Error Handling
//
// All conversion errors wrap one of the sentinel errors ([ErrColumnNotFound],
// [ErrInvalidCell], [ErrUnmappedDiscriminant], [ErrRowArity],
// [ErrConfiguration]) and carry their location in a [*CellError].
// [KindOf] maps any error to a stable [ErrorKind] for reports.
package core
