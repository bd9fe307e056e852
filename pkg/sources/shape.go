package sources

import "github.com/agentstation/fundingscape/pkg/grants"

// Kind says which entity a Shape describes.
type Kind string

// Shape kinds.
const (
	KindGrant Kind = "grant"
	KindCall  Kind = "call"
)

// FunderRef names a funder as the source reports it.
type FunderRef struct {
	Name      string
	ShortName string
	Country   string
	Category  grants.FunderCategory
}

// InstrumentRef names an instrument as the source reports it.
type InstrumentRef struct {
	Name           string
	Recurrence     grants.Recurrence
	DeadlinePolicy grants.DeadlinePolicy
	MinAmount      string
	MaxAmount      string
	Currency       string
	URL            string
}

// Shape is a connector's candidate record. Dates are already parsed by the
// connector, which knows its own format; amounts, currencies and country
// codes are passed through as reported and coerced by the normalizer.
type Shape struct {
	Kind    Kind
	LocalID string
	Title   string

	Funder     *FunderRef
	Instrument *InstrumentRef

	// Grant fields
	ProjectID     string
	Acronym       string
	Abstract      string
	PIName        string
	PIInstitution string
	PICountry     string
	Start         grants.Date
	End           grants.Date
	Amount        string
	Currency      string
	Status        string
	Partners      []string

	// Call fields
	CallIdentifier string
	Description    string
	URL            string
	Opening        grants.Date
	Deadline       grants.Date
	Programme      string

	Keywords []string
}
