package composite

import (
	"github.com/lox/tdomcomposite/internal/models"
)

// EnsureNonEmpty turns a fetch result into a collection that reducers can
// always consume: an Empty result becomes a single fully-masked scene of the
// template's shape.
func EnsureNonEmpty(r models.FetchResult) models.Collection {
	switch r := r.(type) {
	case models.Present:
		return r.Scenes
	case models.Empty:
		return models.Collection{r.Template.Placeholder()}
	default:
		panic("composite: unknown fetch result")
	}
}

// EnsureNonEmptyCollection guards an in-memory collection with tmpl.
func EnsureNonEmptyCollection(c models.Collection, tmpl models.Template) models.Collection {
	return EnsureNonEmpty(models.NewFetchResult(c, tmpl))
}
