// Package normalize turns connector shapes into canonical entities.
//
// It resolves the owning funder and instrument by case-normalized name,
// coerces money, dates, country codes and statuses, and rejects records
// that lack a title or a source-local id. Field problems null the field and
// are returned as *errors.ValidationError; the record survives.
package normalize

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Record is the normalized form of one shape. Exactly one of Grant and
// Call is set.
type Record struct {
	Funder     *grants.Funder
	Instrument *grants.FundingInstrument
	Grant      *grants.GrantAward
	Call       *grants.Call
}

// Identity returns the source identity of the grant or call.
func (r *Record) Identity() grants.SourceIdentity {
	switch {
	case r.Grant != nil:
		return r.Grant.SourceIdentity
	case r.Call != nil:
		return r.Call.SourceIdentity
	}
	return grants.SourceIdentity{}
}

// Normalizer maps shapes to records. The zero value is not usable; call New.
type Normalizer struct {
	now func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used to derive statuses from dates.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New returns a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// FunderID is the deterministic id of a funder.
func FunderID(name, country string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("funder|"+Fold(name)+"|"+country)).String()
}

// InstrumentID is the deterministic id of an instrument under funderID.
func InstrumentID(funderID, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("instrument|"+funderID+"|"+Fold(name))).String()
}

// Normalize maps one shape from source. A rejected record is returned as
// a nil *Record with a single *errors.RejectionError.
func (n *Normalizer) Normalize(source sources.ID, s sources.Shape) (*Record, []error) {
	src := source.String()
	localID := Collapse(s.LocalID)
	title := Collapse(s.Title)

	if localID == "" {
		return nil, []error{errors.NewRejectionError(src, "", "source_id")}
	}
	if title == "" {
		return nil, []error{errors.NewRejectionError(src, localID, "title")}
	}

	p := &problems{source: src, recordID: localID}
	rec := &Record{}
	rec.Funder = n.funder(p, s.Funder)
	if rec.Funder != nil {
		rec.Instrument = n.instrument(p, rec.Funder.ID, s.Instrument)
	}

	id := grants.SourceIdentity{Source: src, LocalID: localID}
	switch s.Kind {
	case sources.KindCall:
		rec.Call = n.call(p, id, title, s)
	default:
		rec.Grant = n.grant(p, id, title, s)
	}
	if rec.Funder != nil {
		if rec.Grant != nil {
			rec.Grant.FunderID = rec.Funder.ID
		}
		if rec.Call != nil {
			rec.Call.FunderID = rec.Funder.ID
		}
	}
	if rec.Instrument != nil {
		if rec.Grant != nil {
			rec.Grant.InstrumentID = rec.Instrument.ID
		}
		if rec.Call != nil {
			rec.Call.InstrumentID = rec.Instrument.ID
		}
	}
	return rec, p.errs
}

type problems struct {
	source   string
	recordID string
	errs     []error
}

func (p *problems) add(field string, value any, msg string) {
	p.errs = append(p.errs, &errors.ValidationError{
		Source:   p.source,
		RecordID: p.recordID,
		Field:    field,
		Value:    value,
		Message:  msg,
	})
}

func (n *Normalizer) funder(p *problems, ref *sources.FunderRef) *grants.Funder {
	if ref == nil || Collapse(ref.Name) == "" {
		return nil
	}
	country, err := Country(ref.Country)
	if err != nil {
		p.add("funder.country", ref.Country, err.Error())
	}
	category := ref.Category
	if category != "" && !category.IsValid() {
		p.add("funder.category", ref.Category, "unknown funder category")
		category = ""
	}
	name := Collapse(ref.Name)
	return &grants.Funder{
		ID:        FunderID(name, country),
		Name:      name,
		ShortName: Collapse(ref.ShortName),
		Country:   country,
		Category:  category,
	}
}

func (n *Normalizer) instrument(p *problems, funderID string, ref *sources.InstrumentRef) *grants.FundingInstrument {
	if ref == nil || Collapse(ref.Name) == "" {
		return nil
	}
	name := Collapse(ref.Name)
	inst := &grants.FundingInstrument{
		ID:             InstrumentID(funderID, name),
		FunderID:       funderID,
		Name:           name,
		Recurrence:     ref.Recurrence,
		DeadlinePolicy: ref.DeadlinePolicy,
		URL:            Collapse(ref.URL),
	}
	if inst.Recurrence != "" && !slices.Contains([]grants.Recurrence{
		grants.RecurrenceAnnual, grants.RecurrenceBiannual, grants.RecurrenceRolling,
		grants.RecurrenceOneTime, grants.RecurrenceIrregular,
	}, inst.Recurrence) {
		p.add("instrument.recurrence", ref.Recurrence, "unknown recurrence")
		inst.Recurrence = ""
	}
	if inst.DeadlinePolicy != "" && !slices.Contains([]grants.DeadlinePolicy{
		grants.DeadlineFixed, grants.DeadlineRolling, grants.DeadlineContinuous,
	}, inst.DeadlinePolicy) {
		p.add("instrument.deadline_policy", ref.DeadlinePolicy, "unknown deadline policy")
		inst.DeadlinePolicy = ""
	}
	inst.MinAmount = n.money(p, "instrument.min_amount", ref.MinAmount, ref.Currency)
	inst.MaxAmount = n.money(p, "instrument.max_amount", ref.MaxAmount, ref.Currency)
	return inst
}

func (n *Normalizer) money(p *problems, field, amount, currency string) *grants.Money {
	m, err := Money(amount, currency)
	if err != nil {
		p.add(field, amount+" "+currency, err.Error())
		if m == nil {
			return nil
		}
	}
	return m
}

func (n *Normalizer) grant(p *problems, id grants.SourceIdentity, title string, s sources.Shape) *grants.GrantAward {
	g := &grants.GrantAward{
		SourceIdentity: id,
		ProjectID:      Collapse(s.ProjectID),
		Acronym:        Collapse(s.Acronym),
		Title:          title,
		Abstract:       Collapse(s.Abstract),
		PI: grants.Investigator{
			Name:        Collapse(s.PIName),
			Institution: Collapse(s.PIInstitution),
		},
		Keywords: Keywords(s.Keywords),
	}
	for _, partner := range s.Partners {
		if partner = Collapse(partner); partner != "" {
			g.Partners = append(g.Partners, partner)
		}
	}

	country, err := Country(s.PICountry)
	if err != nil {
		p.add("pi_country", s.PICountry, err.Error())
	}
	g.PI.Country = country

	start, end, bad := DateRange(s.Start, s.End)
	if msg, ok := bad["start"]; ok {
		p.add("start_date", s.Start.String(), msg)
	}
	if msg, ok := bad["end"]; ok {
		p.add("end_date", s.End.String(), msg)
	}
	g.StartDate, g.EndDate = start, end

	g.Amount = n.money(p, "amount", s.Amount, s.Currency)

	status, ok := GrantStatus(s.Status)
	if !ok {
		p.add("status", s.Status, "unknown grant status")
	}
	if status == "" {
		status = n.deriveGrantStatus(g.EndDate)
	}
	g.Status = status
	return g
}

func (n *Normalizer) deriveGrantStatus(end grants.Date) grants.GrantStatus {
	if !end.IsZero() && end.Before(grants.DateOf(n.now().UTC())) {
		return grants.GrantCompleted
	}
	return grants.GrantActive
}

func (n *Normalizer) call(p *problems, id grants.SourceIdentity, title string, s sources.Shape) *grants.Call {
	c := &grants.Call{
		SourceIdentity:     id,
		CallIdentifier:     Collapse(s.CallIdentifier),
		Title:              title,
		Description:        Collapse(s.Description),
		URL:                Collapse(s.URL),
		Keywords:           Keywords(s.Keywords),
		FrameworkProgramme: Collapse(s.Programme),
	}

	opening, deadline, bad := DateRange(s.Opening, s.Deadline)
	if msg, ok := bad["start"]; ok {
		p.add("opening_date", s.Opening.String(), msg)
	}
	if msg, ok := bad["end"]; ok {
		p.add("deadline", s.Deadline.String(), msg)
	}
	c.OpeningDate, c.Deadline = opening, deadline

	c.Budget = n.money(p, "budget", s.Amount, s.Currency)

	status, ok := CallStatus(s.Status)
	if !ok {
		p.add("status", s.Status, "unknown call status")
	}
	if status == "" {
		status = n.deriveCallStatus(c.OpeningDate, c.Deadline)
	}
	c.Status = status
	return c
}

func (n *Normalizer) deriveCallStatus(opening, deadline grants.Date) grants.CallStatus {
	today := grants.DateOf(n.now().UTC())
	switch {
	case !deadline.IsZero() && deadline.Before(today):
		return grants.CallClosed
	case !opening.IsZero() && opening.After(today):
		return grants.CallForthcoming
	default:
		return grants.CallOpen
	}
}
