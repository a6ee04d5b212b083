package condition

import "sync"

type cacheEntry struct {
	expr *Expression
	err  error
}

// Cache memoizes compiled expressions by source text. Compile errors are
// cached as well so a broken flow condition is parsed only once.
type Cache struct {
	entries sync.Map // string -> cacheEntry
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Compile(expr string) (*Expression, error) {
	if v, ok := c.entries.Load(expr); ok {
		e := v.(cacheEntry)
		return e.expr, e.err
	}
	compiled, err := Compile(expr)
	v, _ := c.entries.LoadOrStore(expr, cacheEntry{expr: compiled, err: err})
	e := v.(cacheEntry)
	return e.expr, e.err
}

// Evaluate compiles through the cache and evaluates against doc.
func (c *Cache) Evaluate(expr string, doc map[string]any) (bool, error) {
	e, err := c.Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Eval(doc)
}
