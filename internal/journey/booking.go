package journey

import (
	"fmt"

	"bookload/internal/config"
	"bookload/internal/extract"
)

// Step tags of the booking journey.
const (
	StepReserve  = "reserve"
	StepPurchase = "purchase"
	StepConfirm  = "confirm"
)

// BookingParams holds everything that varies between booking journeys.
type BookingParams struct {
	ID            string
	Route         config.Route
	Selector      Selector
	Think         ThinkTime
	Card          config.Card
	Address       config.Address
	SuccessMarker string
}

// Booking builds the reserve → purchase → confirm journey for one route.
func Booking(engine *TemplateEngine, p BookingParams) (Spec, error) {
	sel := p.Selector
	if sel == nil {
		sel = Uniform{}
	}

	steps := []Step{
		{
			Name: StepReserve,
			Path: "/reserve.php",
			Fields: []Field{
				{Name: "fromPort", Value: p.Route.From},
				{Name: "toPort", Value: p.Route.To},
			},
			Predicates: []Predicate{Status(StepReserve, 200)},
			Extractor:  extract.Flights,
		},
		{
			Name: StepPurchase,
			Path: "/purchase.php",
			Fields: []Field{
				{Name: "flight", Bind: "flight"},
				{Name: "price", Bind: "price"},
				{Name: "airline", Bind: "airline"},
				{Name: "fromPort", Bind: "fromPort", Value: p.Route.From},
				{Name: "toPort", Bind: "toPort", Value: p.Route.To},
			},
			Predicates: []Predicate{Status(StepPurchase, 200)},
		},
		{
			Name: StepConfirm,
			Path: "/confirmation.php",
			Fields: []Field{
				{Name: "_token", Value: ""},
				{Name: "inputName", Value: p.Address.Name},
				{Name: "address", Value: p.Address.Address},
				{Name: "city", Value: p.Address.City},
				{Name: "state", Value: p.Address.State},
				{Name: "zipCode", Value: p.Address.Zip},
				{Name: "cardType", Value: p.Card.Type},
				{Name: "creditCardNumber", Value: p.Card.Number},
				{Name: "creditCardMonth", Value: p.Card.Month},
				{Name: "creditCardYear", Value: p.Card.Year},
				{Name: "nameOnCard", Value: p.Card.Name},
			},
			Predicates: []Predicate{
				Status(StepConfirm, 200),
				BodyContains("receipt visible", p.SuccessMarker),
			},
		},
	}

	for i := range steps {
		fields, err := engine.CompileFields(steps[i].Name, steps[i].Fields)
		if err != nil {
			return Spec{}, fmt.Errorf("journey %s: %w", p.ID, err)
		}
		steps[i].Fields = fields
	}

	spec := Spec{ID: p.ID, Steps: steps, Think: p.Think, Selector: sel}
	return spec, spec.Validate()
}

// Predefined builds the three configured booking journeys.
func Predefined(cfg config.Config, engine *TemplateEngine) ([]Spec, error) {
	specs := make([]Spec, 0, len(cfg.Journeys))
	for _, j := range cfg.Journeys {
		var sel Selector = Uniform{}
		if j.BiasCarrier != "" && j.BiasProbability > 0 {
			sel = Biased{
				Probability: j.BiasProbability,
				Filter:      FieldEquals("airline", j.BiasCarrier),
			}
		}

		spec, err := Booking(engine, BookingParams{
			ID:            j.ID,
			Route:         j.Route,
			Selector:      sel,
			Think:         ThinkTime{Min: cfg.ThinkMin, Max: cfg.ThinkMax},
			Card:          cfg.Card,
			Address:       cfg.Address,
			SuccessMarker: cfg.SuccessMarker,
		})
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
