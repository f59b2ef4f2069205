package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"callintake_backend/internal/companies"
	"callintake_backend/internal/events"
	"callintake_backend/internal/hours"
	"callintake_backend/internal/intent"
	schedtransport "callintake_backend/internal/scheduling/transport"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/logger"
	"callintake_backend/platform/phone"

	"github.com/google/uuid"
)

// spokenTimeFormat renders instants the way the assistant should say them.
const (
	spokenTimeFormat = "Monday, January 2 at 3:04 PM"
	spokenDayFormat  = "Monday, January 2"
	argDateFormat    = "2006-01-02"
)

// CallTracker is the slice of the call service the dispatcher needs.
type CallTracker interface {
	SessionInfo(callID string) (from string, emergency bool, ok bool)
}

// Booker is the slice of the scheduling service the dispatcher needs.
type Booker interface {
	Book(ctx context.Context, companyID uuid.UUID, req schedtransport.BookAppointmentRequest) (*schedtransport.AppointmentResponse, error)
	AvailableSlots(ctx context.Context, companyID uuid.UUID, date time.Time, durationMin int) ([]time.Time, error)
	Alternatives(ctx context.Context, companyID uuid.UUID, preferred time.Time, count int) ([]time.Time, error)
}

// CompanyDirectory provides the company snapshot data behind pricing and
// availability answers.
type CompanyDirectory interface {
	GetWeekSchedule(ctx context.Context, companyID uuid.UUID) (hours.WeekSchedule, error)
	ListCatalog(ctx context.Context, companyID uuid.UUID) ([]companies.CatalogEntry, error)
}

// Dispatcher answers assistant function calls with verbatim speech strings.
// Every returned string is spoken to the caller exactly as produced here.
type Dispatcher struct {
	tracker   CallTracker
	booker    Booker
	companies CompanyDirectory
	classify  *intent.Classifier
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

// NewDispatcher creates the function-call dispatcher.
func NewDispatcher(tracker CallTracker, booker Booker, dir CompanyDirectory, classify *intent.Classifier, bus events.Bus, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		tracker:   tracker,
		booker:    booker,
		companies: dir,
		classify:  classify,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// Dispatch routes one function call to its implementation.
func (d *Dispatcher) Dispatch(ctx context.Context, companyID uuid.UUID, callID string, call FunctionCallPayload) (string, error) {
	switch call.Name {
	case "book_appointment":
		return d.bookAppointment(ctx, companyID, callID, call)
	case "get_pricing":
		return d.getPricing(ctx, companyID, callID, call)
	case "check_availability":
		return d.checkAvailability(ctx, companyID, call)
	case "escalate_to_human":
		return d.escalate(ctx, companyID, callID, call)
	default:
		return "", apperr.BadRequest(fmt.Sprintf("unknown function %q", call.Name))
	}
}

func (d *Dispatcher) bookAppointment(ctx context.Context, companyID uuid.UUID, callID string, call FunctionCallPayload) (string, error) {
	args, err := decodeArgs[BookAppointmentArgs](call)
	if err != nil {
		return "", err
	}

	from, emergency, _ := d.tracker.SessionInfo(callID)

	customerPhone := args.CustomerPhone
	if customerPhone == "" {
		customerPhone = from
	}
	customerPhone = phone.NormalizeE164(customerPhone)

	priority := schedtransport.PriorityMedium
	if emergency || args.Urgent {
		priority = schedtransport.PriorityEmergency
	}

	req := schedtransport.BookAppointmentRequest{
		CustomerName:  args.CustomerName,
		CustomerPhone: customerPhone,
		ServiceType:   args.ServiceType,
		Priority:      priority,
		CallID:        callID,
		Notes:         args.Notes,
	}

	// A concrete preferred date books the first open slot that day, or offers
	// alternatives without booking anything.
	if args.PreferredDate != "" {
		preferred, err := time.Parse(argDateFormat, args.PreferredDate)
		if err != nil {
			return "", apperr.BadRequest("preferredDate must be YYYY-MM-DD")
		}

		slots, err := d.booker.AvailableSlots(ctx, companyID, preferred, 0)
		if err != nil {
			return "", err
		}
		if len(slots) == 0 {
			alts, err := d.booker.Alternatives(ctx, companyID, preferred, 2)
			if err != nil {
				return "", err
			}
			return speakAlternatives(preferred, alts), nil
		}
		req.StartTime = &slots[0]
	}

	resp, err := d.booker.Book(ctx, companyID, req)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return "I'm sorry, that time was just taken. Let me check for another opening.", nil
		}
		return "", err
	}

	when := resp.StartTime.Format(spokenTimeFormat)
	switch {
	case resp.Fallback:
		return fmt.Sprintf("We're quite booked at the moment. The earliest I could reserve is %s, and our team will call you if anything opens up sooner.", when), nil
	case priority == schedtransport.PriorityEmergency:
		return fmt.Sprintf("Help is on the way. A technician is scheduled for %s.", when), nil
	default:
		return fmt.Sprintf("You're all set. I have you down for %s.", when), nil
	}
}

func (d *Dispatcher) getPricing(ctx context.Context, companyID uuid.UUID, callID string, call FunctionCallPayload) (string, error) {
	args, err := decodeArgs[GetPricingArgs](call)
	if err != nil {
		return "", err
	}

	catalog, err := d.companies.ListCatalog(ctx, companyID)
	if err != nil {
		return "", err
	}

	serviceTypes := []string{args.ServiceType}
	if args.ServiceType == "" {
		serviceTypes = d.classify.ExtractServiceTypes(args.Description)
	}

	_, emergency, _ := d.tracker.SessionInfo(callID)

	afterHours := false
	if schedule, err := d.companies.GetWeekSchedule(ctx, companyID); err == nil {
		afterHours = hours.IsAfterHours(schedule, d.now())
	}

	estimate, ok := intent.EstimatePrice(companies.PriceBases(catalog), serviceTypes, emergency, afterHours)
	if !ok {
		return "I don't have exact pricing for that service, but our office will follow up with a detailed quote.", nil
	}
	return estimate.Text(), nil
}

func (d *Dispatcher) checkAvailability(ctx context.Context, companyID uuid.UUID, call FunctionCallPayload) (string, error) {
	args, err := decodeArgs[CheckAvailabilityArgs](call)
	if err != nil {
		return "", err
	}

	date, err := time.Parse(argDateFormat, args.Date)
	if err != nil {
		return "", apperr.BadRequest("date must be YYYY-MM-DD")
	}

	slots, err := d.booker.AvailableSlots(ctx, companyID, date, 0)
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		alts, err := d.booker.Alternatives(ctx, companyID, date, 2)
		if err != nil {
			return "", err
		}
		return speakAlternatives(date, alts), nil
	}

	times := make([]string, 0, 3)
	for i, slot := range slots {
		if i == 3 {
			break
		}
		times = append(times, slot.Format("3:04 PM"))
	}
	return fmt.Sprintf("On %s we have openings at %s.", date.Format(spokenDayFormat), strings.Join(times, ", ")), nil
}

func (d *Dispatcher) escalate(ctx context.Context, companyID uuid.UUID, callID string, call FunctionCallPayload) (string, error) {
	args, err := decodeArgs[EscalateArgs](call)
	if err != nil {
		return "", err
	}

	from, _, _ := d.tracker.SessionInfo(callID)
	d.bus.Publish(ctx, events.EscalationRequested{
		BaseEvent:   events.NewBaseEvent(),
		CallID:      callID,
		CompanyID:   companyID,
		CallerPhone: from,
		Reason:      args.Reason,
	})

	return "Of course. I'm notifying the on-call technician right now, and someone will be with you shortly.", nil
}

func speakAlternatives(requested time.Time, alts []time.Time) string {
	if len(alts) == 0 {
		return fmt.Sprintf("I'm sorry, %s is fully booked and I don't see openings in the following days. Our office will call you back to arrange a time.", requested.Format(spokenDayFormat))
	}

	spoken := make([]string, 0, len(alts))
	for _, alt := range alts {
		spoken = append(spoken, alt.Format(spokenTimeFormat))
	}
	return fmt.Sprintf("I'm sorry, %s is fully booked. The closest openings are %s. Would either of those work?", requested.Format(spokenDayFormat), strings.Join(spoken, " or "))
}

func decodeArgs[T any](call FunctionCallPayload) (T, error) {
	var args T
	if len(call.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return args, apperr.BadRequest(fmt.Sprintf("malformed %s arguments", call.Name))
	}
	return args, nil
}
