package service

import (
	"strings"

	"artisanlink/internal/models"
)

// PriceForm is the transient state of the artisan's quote dialog.
type PriceForm struct {
	Open         bool
	Labor        float64
	Parts        float64
	Transport    float64
	EmergencyFee float64
	Currency     string
	Note         string
}

// Price builds the request body; the total is the sum of the components.
func (f *PriceForm) Price() models.ProposedPrice {
	p := models.ProposedPrice{
		Labor:        f.Labor,
		Parts:        f.Parts,
		Transport:    f.Transport,
		EmergencyFee: f.EmergencyFee,
		Currency:     f.Currency,
		Note:         strings.TrimSpace(f.Note),
	}
	p.Total = p.Sum()
	return p
}

// Reset closes the dialog and clears every input.
func (f *PriceForm) Reset() {
	*f = PriceForm{}
}
