// Package service implements the live call session tracker: lifecycle state,
// transcript classification, emergency escalation, and dashboard fan-out.
package service

import (
	"context"
	"time"

	"callintake_backend/internal/calls/repository"
	"callintake_backend/internal/calls/sse"
	"callintake_backend/internal/calls/transport"
	"callintake_backend/internal/events"
	"callintake_backend/internal/intent"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/logger"

	"github.com/google/uuid"
)

// durationTickInterval drives the periodic dashboard duration refresh.
const durationTickInterval = 5 * time.Second

// Store persists completed calls.
type Store interface {
	Save(ctx context.Context, rec *repository.CallRecord) error
	ListRecent(ctx context.Context, companyID uuid.UUID, limit int) ([]repository.CallRecord, error)
}

// Service tracks in-flight call sessions and reacts to telephony events.
type Service struct {
	registry   *Registry
	classifier *intent.Classifier
	store      Store
	bus        events.Bus
	sse        *sse.Service
	log        *logger.Logger
	now        func() time.Time
}

// New creates the call tracker service.
func New(registry *Registry, classifier *intent.Classifier, store Store, bus events.Bus, sseSvc *sse.Service, log *logger.Logger) *Service {
	return &Service{
		registry:   registry,
		classifier: classifier,
		store:      store,
		bus:        bus,
		sse:        sseSvc,
		log:        log,
		now:        time.Now,
	}
}

// HandleCallRinging registers a new session for an inbound call. A second
// ringing event for a live call is a provider redelivery and is discarded.
func (s *Service) HandleCallRinging(ctx context.Context, callID string, companyID uuid.UUID, from, to string, ts time.Time) {
	if ts.IsZero() {
		ts = s.now()
	}

	session, created := s.registry.GetOrCreate(callID, func() *Session {
		return &Session{
			CallID:    callID,
			CompanyID: companyID,
			From:      from,
			To:        to,
			State:     transport.StateRinging,
			CallType:  string(intent.CallTypeGeneralInquiry),
			StartedAt: ts,
		}
	})
	if !created {
		s.log.WebhookEvent("call.ringing", callID, false, "duplicate ringing for live call")
		return
	}

	session.Lock()
	view := session.View(s.now())
	session.Unlock()

	s.bus.Publish(ctx, events.CallStarted{
		BaseEvent: events.NewBaseEvent(),
		CallID:    callID,
		CompanyID: companyID,
		From:      from,
	})
	s.sse.Publish(companyID, sse.Event{Type: sse.EventCallStarted, CallID: callID, Data: view})
	s.log.WebhookEvent("call.ringing", callID, true, "")
}

// HandleCallAnswered moves a ringing session to ANSWERED. An answered event
// for an unknown call arrived out of order; the session is created so no
// subsequent transcript is orphaned.
func (s *Service) HandleCallAnswered(ctx context.Context, callID string, companyID uuid.UUID, ts time.Time) {
	if ts.IsZero() {
		ts = s.now()
	}

	session, created := s.registry.GetOrCreate(callID, func() *Session {
		return &Session{
			CallID:    callID,
			CompanyID: companyID,
			State:     transport.StateAnswered,
			CallType:  string(intent.CallTypeGeneralInquiry),
			StartedAt: ts,
		}
	})
	if created {
		s.log.WebhookEvent("call.answered", callID, true, "session created out of order")
	}

	session.Lock()
	if session.State == transport.StateRinging {
		session.State = transport.StateAnswered
	}
	companyID = session.CompanyID
	view := session.View(s.now())
	session.Unlock()

	s.publishUpdated(ctx, callID, companyID, view)
	s.log.WebhookEvent("call.answered", callID, true, "")
}

// HandleTranscript appends a transcript turn and re-classifies the session.
// The emergency flag is monotone: once set it never clears, and the
// escalation side effect fires exactly once, on the false-to-true transition.
func (s *Service) HandleTranscript(ctx context.Context, callID string, companyID uuid.UUID, role, text string, ts time.Time) {
	if ts.IsZero() {
		ts = s.now()
	}

	session, created := s.registry.GetOrCreate(callID, func() *Session {
		return &Session{
			CallID:    callID,
			CompanyID: companyID,
			State:     transport.StateInProgress,
			CallType:  string(intent.CallTypeGeneralInquiry),
			StartedAt: ts,
		}
	})
	if created {
		s.log.WebhookEvent("call.transcript", callID, true, "session created out of order")
	}

	var escalate *events.EmergencyDetected

	session.Lock()
	session.Transcript = append(session.Transcript, events.TranscriptTurn{Role: role, Text: text, Timestamp: ts})
	if session.State == transport.StateRinging || session.State == transport.StateAnswered {
		session.State = transport.StateInProgress
	}

	if role == "caller" || role == "user" {
		result := s.classifier.Classify(text)

		if !session.IsEmergency {
			session.CallType = string(result.CallType)
		}
		session.ServiceTypes = mergeServiceTypes(session.ServiceTypes, result.ServiceTypes, s.classifier.FallbackService())

		if result.IsEmergency && !session.IsEmergency {
			session.IsEmergency = true
			session.CallType = string(intent.CallTypeEmergency)
			session.MatchedText = result.MatchedPhrase
			escalate = &events.EmergencyDetected{
				BaseEvent:    events.NewBaseEvent(),
				CallID:       callID,
				CompanyID:    session.CompanyID,
				CallerPhone:  session.From,
				MatchedText:  result.MatchedPhrase,
				ServiceTypes: append([]string(nil), session.ServiceTypes...),
			}
		}
	}
	companyID = session.CompanyID
	view := session.View(s.now())
	session.Unlock()

	if escalate != nil {
		s.bus.Publish(ctx, *escalate)
		s.sse.Publish(companyID, sse.Event{Type: sse.EventEmergencyDetected, CallID: callID, Data: view})
		s.log.EmergencyDetected(callID, companyID.String())
	}
	s.publishUpdated(ctx, callID, companyID, view)
}

// HandleCallEnded persists the final record and evicts the session. A
// terminal event for an unknown call ID is a duplicate or late redelivery:
// logged, acknowledged, no state change. A failed persistence write keeps the
// session so the provider retry can complete it.
func (s *Service) HandleCallEnded(ctx context.Context, callID, sentiment string, ts time.Time) error {
	session, ok := s.registry.Get(callID)
	if !ok {
		s.log.WebhookEvent("call.ended", callID, false, "no live session, duplicate terminal discarded")
		return nil
	}

	if ts.IsZero() {
		ts = s.now()
	}

	session.Lock()
	session.State = transport.StateEnding
	if session.EndedAt.IsZero() {
		session.EndedAt = ts
	}
	if sentiment != "" {
		session.Sentiment = sentiment
	}

	rec := &repository.CallRecord{
		ID:           uuid.New(),
		CallID:       session.CallID,
		CompanyID:    session.CompanyID,
		FromPhone:    session.From,
		ToPhone:      session.To,
		IsEmergency:  session.IsEmergency,
		CallType:     session.CallType,
		ServiceTypes: append([]string(nil), session.ServiceTypes...),
		Sentiment:    session.Sentiment,
		StartedAt:    session.StartedAt,
		EndedAt:      session.EndedAt,
		DurationSec:  int(session.Duration(session.EndedAt).Seconds()),
		Transcript:   append([]events.TranscriptTurn(nil), session.Transcript...),
		CreatedAt:    s.now(),
	}
	ended := events.CallEnded{
		BaseEvent:   events.NewBaseEvent(),
		CallID:      session.CallID,
		CompanyID:   session.CompanyID,
		From:        session.From,
		IsEmergency: session.IsEmergency,
		Sentiment:   session.Sentiment,
		StartedAt:   session.StartedAt,
		EndedAt:     session.EndedAt,
		Transcript:  rec.Transcript,
	}
	companyID := session.CompanyID
	view := session.View(s.now())
	session.Unlock()

	if err := s.store.Save(ctx, rec); err != nil {
		s.log.DatabaseError("save call record", err)
		return apperr.Wrap(apperr.KindUnavailable, "call record store unavailable", err)
	}

	s.registry.Delete(callID)
	s.bus.Publish(ctx, ended)
	s.sse.Publish(companyID, sse.Event{Type: sse.EventCallEnded, CallID: callID, Data: view})
	s.log.WebhookEvent("call.ended", callID, true, "")
	return nil
}

// Snapshot projects every live session of a company plus aggregate stats.
func (s *Service) Snapshot(companyID uuid.UUID) transport.DashboardSnapshot {
	now := s.now()
	snap := transport.DashboardSnapshot{Sessions: []transport.SessionView{}}

	for _, session := range s.registry.Snapshot() {
		session.Lock()
		if session.CompanyID != companyID {
			session.Unlock()
			continue
		}
		view := session.View(now)
		session.Unlock()

		snap.Sessions = append(snap.Sessions, view)
		snap.Stats.ActiveCalls++
		if view.IsEmergency {
			snap.Stats.EmergencyCalls++
		}
	}
	return snap
}

// RecentRecords lists the latest completed calls.
func (s *Service) RecentRecords(ctx context.Context, companyID uuid.UUID, limit int) ([]transport.CallRecordView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	records, err := s.store.ListRecent(ctx, companyID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]transport.CallRecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, transport.CallRecordView{
			ID:           rec.ID,
			CallID:       rec.CallID,
			CompanyID:    rec.CompanyID,
			From:         rec.FromPhone,
			IsEmergency:  rec.IsEmergency,
			CallType:     rec.CallType,
			ServiceTypes: rec.ServiceTypes,
			Sentiment:    rec.Sentiment,
			StartedAt:    rec.StartedAt,
			EndedAt:      rec.EndedAt,
			DurationSec:  rec.DurationSec,
		})
	}
	return out, nil
}

// Run publishes duration ticks for live sessions every five seconds until the
// context is cancelled. The registry is snapshotted first; session locks are
// taken one at a time so a tick never stalls webhook processing.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(durationTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishDurationTicks()
		}
	}
}

func (s *Service) publishDurationTicks() {
	now := s.now()
	perCompany := make(map[uuid.UUID][]transport.SessionView)

	for _, session := range s.registry.Snapshot() {
		session.Lock()
		view := session.View(now)
		session.Unlock()
		perCompany[view.CompanyID] = append(perCompany[view.CompanyID], view)
	}

	for companyID, views := range perCompany {
		if s.sse.SubscriberCount(companyID) == 0 {
			continue
		}
		s.sse.Publish(companyID, sse.Event{Type: sse.EventDurationTick, Data: views})
	}
}

func (s *Service) publishUpdated(ctx context.Context, callID string, companyID uuid.UUID, view transport.SessionView) {
	s.bus.Publish(ctx, events.CallUpdated{
		BaseEvent: events.NewBaseEvent(),
		CallID:    callID,
		CompanyID: companyID,
	})
	s.sse.Publish(companyID, sse.Event{Type: sse.EventCallUpdated, CallID: callID, Data: view})
}

// mergeServiceTypes unions newly matched categories into the session's set,
// preserving first-seen order and dropping the fallback placeholder once a
// real category appears.
func mergeServiceTypes(existing, matched []string, fallback string) []string {
	out := append([]string(nil), existing...)
	for _, m := range matched {
		found := false
		for _, e := range out {
			if e == m {
				found = true
				break
			}
		}
		if !found {
			out = append(out, m)
		}
	}

	if len(out) > 1 {
		filtered := out[:0]
		for _, v := range out {
			if v != fallback {
				filtered = append(filtered, v)
			}
		}
		if len(filtered) > 0 {
			out = filtered
		}
	}
	return out
}

// SessionInfo exposes the caller phone and emergency flag of a live session
// for the function-call dispatcher.
func (s *Service) SessionInfo(callID string) (from string, emergency bool, ok bool) {
	session, ok := s.registry.Get(callID)
	if !ok {
		return "", false, false
	}
	session.Lock()
	defer session.Unlock()
	return session.From, session.IsEmergency, true
}
