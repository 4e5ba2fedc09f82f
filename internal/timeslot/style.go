package timeslot

// Styles is the set of location slugs that get their own CSS classes.
// Everything else shares evt-even / evt-odd.
type Styles map[string]struct{}

func NewStyles(slugs ...string) Styles {
	s := make(Styles, len(slugs))
	for _, slug := range slugs {
		s[slug] = struct{}{}
	}
	return s
}

func (s Styles) tokens(key string) [2]string {
	if _, ok := s[key]; ok {
		return [2]string{"evt-" + key + "-even", "evt-" + key + "-odd"}
	}
	return [2]string{"evt-even", "evt-odd"}
}

type cycleKey struct {
	column int
	key    string
}

// cycler alternates the two tokens of a location separately for every
// column.
type cycler struct {
	styles Styles
	seen   map[cycleKey]int
}

func (s Styles) cycler() *cycler {
	return &cycler{styles: s, seen: make(map[cycleKey]int)}
}

func (c *cycler) next(column int, key string) string {
	k := cycleKey{column, key}
	n := c.seen[k]
	c.seen[k] = n + 1
	return c.styles.tokens(key)[n%2]
}
