package prompt

// Persona is the fixed identity of a simulated agent slot: a name, an
// expertise framing, a creativity parameter for the generation backend,
// and the consistency probability displayed to the model. These are
// properties of the slot, not of any single request.
type Persona struct {
	Name        string
	Expertise   string
	Perspective string

	// Temperature is the slot's fixed sampling temperature.
	Temperature float64

	// Consistency is the probability the agent is told to hold its
	// assigned stance with. It is display text inside the instruction,
	// not a stochastic gate.
	Consistency float64
}

var personas = [3]Persona{
	{
		Name:        "Alex",
		Expertise:   "a policy analyst",
		Perspective: "practical consequences and how proposals play out for ordinary people",
		Temperature: 0.7,
		Consistency: 0.95,
	},
	{
		Name:        "Jordan",
		Expertise:   "a social scientist",
		Perspective: "what research and data say about the issue",
		Temperature: 0.8,
		Consistency: 0.90,
	},
	{
		Name:        "Sam",
		Expertise:   "a journalist",
		Perspective: "the arguments and counterarguments circulating in public debate",
		Temperature: 0.9,
		Consistency: 0.85,
	},
}

// PersonaFor returns the fixed persona for agent slot 1..3.
func PersonaFor(slot int) Persona {
	if slot < 1 || slot > len(personas) {
		return personas[0]
	}
	return personas[slot-1]
}
