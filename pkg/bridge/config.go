package bridge

// Config bounds the bridge loop.
type Config struct {
	// MaxTurns caps model round-trips per request, counting the initial
	// turn. When the budget is exhausted while calls keep coming the
	// response finishes with reason "length". Defaults to 8.
	MaxTurns int
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 8
	}
	return c
}
