/*
Package dsl provides a fluent Go builder for programmatically
constructing stage catalogs.

It lets hosts define conversation graphs in type-checked Go instead of
external YAML, which is useful for generated flows, unit tests and IDE
support.

Example usage:

	cat, err := dsl.New().
		Entry("greeting").
		Stage("greeting").
		Name("Greeting").
		Instructions("greet-v1").
		Branch(`intent == "greet"`, "discovery").
		Go("clarify").
		Stage("clarify").
		Go("greeting").
		Stage("discovery").
		Terminal().
		Build()
	// wrap with catalog.NewStaticLoader(cat) and pass to stagehand.New
*/
package dsl
