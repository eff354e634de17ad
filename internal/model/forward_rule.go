package model

// Rule is a named forwarding directive: messages from any of Sources are
// copied to Destination.
type Rule struct {
	Name        string  `json:"-" yaml:"name"`
	Destination int64   `json:"destination" yaml:"destination"`
	Sources     []int64 `json:"sources" yaml:"sources"`
}

// NewRule creates a rule with no sources
func NewRule(name string, destination int64) Rule {
	return Rule{
		Name:        name,
		Destination: destination,
		Sources:     []int64{},
	}
}

// HasSource reports whether chatID feeds this rule
func (r Rule) HasSource(chatID int64) bool {
	for _, id := range r.Sources {
		if id == chatID {
			return true
		}
	}
	return false
}

// AddSource appends chatID unless it is already present. It returns true
// when the source was added.
func (r *Rule) AddSource(chatID int64) bool {
	if r.HasSource(chatID) {
		return false
	}
	r.Sources = append(r.Sources, chatID)
	return true
}

// Clone returns a deep copy of the rule
func (r Rule) Clone() Rule {
	sources := make([]int64, len(r.Sources))
	copy(sources, r.Sources)
	r.Sources = sources
	return r
}
