package enrich

// Logger is the minimal logging sink the enricher needs. The sink is owned by
// the hosting runtime; the enricher never closes or reconfigures it.
type Logger interface {
	Info(msg string)
	Error(msg string)
}

// Context is the capability bundle supplied by the hosting runtime for one
// message. Every field is optional: a nil accessor, or one that panics,
// degrades to the documented fallback instead of failing the message.
type Context struct {
	FunctionName    func() string
	FunctionVersion func() string
	MessageID       func() interface{}
	Topic           func() string
	PartitionID     func() interface{}
	Logger          Logger
}

// stringCapability invokes fn, folding absence and panics into ok=false.
func stringCapability(fn func() string) (s string, ok bool) {
	if fn == nil {
		return "", false
	}
	defer func() {
		if recover() != nil {
			s, ok = "", false
		}
	}()
	return fn(), true
}

// valueCapability is stringCapability for accessors returning arbitrary values.
func valueCapability(fn func() interface{}) (v interface{}, ok bool) {
	if fn == nil {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	return fn(), true
}

func (c Context) logInfo(msg string) {
	if c.Logger == nil {
		return
	}
	defer func() { _ = recover() }()
	c.Logger.Info(msg)
}

func (c Context) logError(msg string) {
	if c.Logger == nil {
		return
	}
	defer func() { _ = recover() }()
	c.Logger.Error(msg)
}
