package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	codeNotFound = "not_found"
	codeInvalid  = "invalid"
	codeInternal = "internal"
)

// dispatch handles one inbound request to completion: store write first,
// broadcast after, errors to the requester only.
func (h *Hub) dispatch(ctx context.Context, c *Conn, env Envelope) {
	var err error
	switch env.Event {
	case EventRoundList:
		err = h.handleRoundList(ctx, c)
	case EventRoundAdd:
		err = h.handleRoundAdd(ctx, env.Data)
	case EventRoundUpdate:
		err = h.handleRoundUpdate(ctx, env.Data)
	case EventRoundDelete:
		err = h.handleRoundDelete(ctx, env.Data)
	case EventRequestFull:
		err = h.handleRequestFull(ctx, c, env.Data)
	case EventQualifyingSave:
		err = h.handleQualifyingSave(ctx, env.Data)
	case EventRaceSave:
		err = h.handleRaceSave(ctx, env.Data)
	case EventDriverAdd:
		err = h.handleDriverAdd(ctx, env.Data)
	case EventDriverRemove:
		err = h.handleDriverRemove(ctx, env.Data)
	case EventSessionAdd:
		err = h.handleSessionAdd(ctx, env.Data)
	case EventSessionUpdateLabel:
		err = h.handleSessionUpdateLabel(ctx, env.Data)
	case EventSessionUpdateClass:
		err = h.handleSessionUpdateClass(ctx, env.Data)
	case EventSessionSetEndurance:
		err = h.handleSessionSetEndurance(ctx, env.Data)
	default:
		err = fmt.Errorf("%w: unknown event %q", store.ErrInvalid, env.Event)
	}

	if err != nil {
		h.sendError(c, env.Event, err)
	}
}

func (h *Hub) sendError(c *Conn, event string, err error) {
	code := codeInternal
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, store.ErrInvalid):
		code = codeInvalid
	default:
		log.Error().Err(err).Str("event", event).Msg("mutation failed")
	}
	h.sendTo(c, EventError, ErrorPayload{Event: event, Code: code, Message: err.Error()})
}

func decode[T any](data json.RawMessage) (T, error) {
	var payload T
	if len(data) == 0 {
		return payload, fmt.Errorf("%w: missing payload", store.ErrInvalid)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}
	return payload, nil
}

func (h *Hub) handleRoundList(ctx context.Context, c *Conn) error {
	rounds, err := h.store.ListRounds(ctx)
	if err != nil {
		return err
	}
	h.sendTo(c, EventRoundListResult, rounds)
	return nil
}

func (h *Hub) handleRoundAdd(ctx context.Context, data json.RawMessage) error {
	p, err := decode[RoundAddPayload](data)
	if err != nil {
		return err
	}
	if _, err := h.store.CreateRound(ctx, p.Name, p.TabLabels, p.Classes); err != nil {
		return err
	}
	return h.broadcastRoundList(ctx)
}

func (h *Hub) handleRoundUpdate(ctx context.Context, data json.RawMessage) error {
	p, err := decode[RoundUpdatePayload](data)
	if err != nil {
		return err
	}
	patch := models.RoundPatch{Name: p.Name, TabLabels: p.TabLabels, Classes: p.Classes}
	if err := h.store.UpdateRound(ctx, p.RoundID, patch); err != nil {
		return err
	}
	return h.broadcastRoundList(ctx)
}

func (h *Hub) handleRoundDelete(ctx context.Context, data json.RawMessage) error {
	p, err := decode[RoundDeletePayload](data)
	if err != nil {
		return err
	}
	if err := h.store.DeleteRound(ctx, p.RoundID); err != nil {
		return err
	}
	return h.broadcastRoundList(ctx)
}

func (h *Hub) broadcastRoundList(ctx context.Context) error {
	rounds, err := h.store.ListRounds(ctx)
	if err != nil {
		return err
	}
	h.broadcast(EventRoundListResult, rounds)
	return nil
}

func (h *Hub) handleRequestFull(ctx context.Context, c *Conn, data json.RawMessage) error {
	var roundID *string
	if len(data) > 0 {
		p, err := decode[RequestFullPayload](data)
		if err != nil {
			return err
		}
		roundID = p.RoundID
	}
	state, err := h.store.FullState(ctx, roundID)
	if err != nil {
		return err
	}
	h.sendTo(c, EventFullState, state)
	return nil
}

// handleQualifyingSave replaces a qualifying session's results. Positions
// and status are derived here, not trusted from the client: ranking is by
// canonical best lap, and the status follows from how many drivers have one.
func (h *Hub) handleQualifyingSave(ctx context.Context, data json.RawMessage) error {
	p, err := decode[QualifyingSavePayload](data)
	if err != nil {
		return err
	}
	info, err := h.store.GetSession(ctx, p.RaceID)
	if err != nil {
		return err
	}
	if info.Kind != models.KindQualifying {
		return fmt.Errorf("%w: session %q is not a qualifying session", store.ErrInvalid, p.RaceID)
	}

	ranked := models.RankQualifying(p.Results)
	status := models.QualifyingStatus(info.DriverCount, ranked)
	if err := h.store.SaveQualifyingResults(ctx, p.RaceID, ranked, status); err != nil {
		return err
	}
	h.broadcast(EventQualifyingSaved, QualifyingSavedPayload{
		RaceID: p.RaceID, Results: ranked, Status: status,
	})
	return nil
}

// handleRaceSave replaces a race session's results. Card order is the
// ranking; the leader's gap is forced to the sentinel.
func (h *Hub) handleRaceSave(ctx context.Context, data json.RawMessage) error {
	p, err := decode[RaceSavePayload](data)
	if err != nil {
		return err
	}
	info, err := h.store.GetSession(ctx, p.RaceID)
	if err != nil {
		return err
	}
	if info.Kind == models.KindQualifying {
		return fmt.Errorf("%w: session %q is a qualifying session", store.ErrInvalid, p.RaceID)
	}

	ranked := models.RankRace(p.Results)
	status := models.RaceStatus(info.DriverCount, ranked)
	if err := h.store.SaveRaceResults(ctx, p.RaceID, ranked, status); err != nil {
		return err
	}
	h.broadcast(EventRaceSaved, RaceSavedPayload{
		RaceID: p.RaceID, Results: ranked, Status: status,
	})
	return nil
}

func (h *Hub) handleDriverAdd(ctx context.Context, data json.RawMessage) error {
	p, err := decode[DriverAddPayload](data)
	if err != nil {
		return err
	}
	driver, err := h.store.AddDriver(ctx, p.RaceID, p.Name)
	if err != nil {
		return err
	}
	h.broadcast(EventDriverAdded, DriverAddedPayload{RaceID: p.RaceID, Driver: *driver})
	return nil
}

func (h *Hub) handleDriverRemove(ctx context.Context, data json.RawMessage) error {
	p, err := decode[DriverRemovePayload](data)
	if err != nil {
		return err
	}
	if err := h.store.RemoveDriver(ctx, p.RaceID, p.DriverID); err != nil {
		return err
	}
	h.broadcast(EventDriverRemoved, DriverRemovedPayload{RaceID: p.RaceID, DriverID: p.DriverID})
	return nil
}

func (h *Hub) handleSessionAdd(ctx context.Context, data json.RawMessage) error {
	p, err := decode[SessionAddPayload](data)
	if err != nil {
		return err
	}
	if _, err := h.store.CreateSession(ctx, p.Category, p.Kind, p.RaceClass, p.Label, p.RoundID); err != nil {
		return err
	}
	return h.broadcastFullState(ctx, p.RoundID)
}

func (h *Hub) handleSessionUpdateLabel(ctx context.Context, data json.RawMessage) error {
	p, err := decode[SessionUpdateLabelPayload](data)
	if err != nil {
		return err
	}
	if err := h.store.UpdateSessionLabel(ctx, p.RaceID, p.Label); err != nil {
		return err
	}
	h.broadcast(EventSessionLabelUpdated, SessionLabelUpdatedPayload{RaceID: p.RaceID, Label: p.Label})
	return nil
}

func (h *Hub) handleSessionUpdateClass(ctx context.Context, data json.RawMessage) error {
	p, err := decode[SessionUpdateClassPayload](data)
	if err != nil {
		return err
	}
	if err := h.store.UpdateSessionClass(ctx, p.RaceID, p.RaceClass); err != nil {
		return err
	}
	info, err := h.store.GetSession(ctx, p.RaceID)
	if err != nil {
		return err
	}
	return h.broadcastFullState(ctx, info.RoundID)
}

func (h *Hub) handleSessionSetEndurance(ctx context.Context, data json.RawMessage) error {
	p, err := decode[SessionSetEndurancePayload](data)
	if err != nil {
		return err
	}
	if err := h.store.SetSessionEndurance(ctx, p.RaceID, p.IsEndurance); err != nil {
		return err
	}
	info, err := h.store.GetSession(ctx, p.RaceID)
	if err != nil {
		return err
	}
	return h.broadcastFullState(ctx, info.RoundID)
}

// broadcastFullState pushes a structural snapshot (session or driver shape
// changed) of one round, or of everything when no round is known.
func (h *Hub) broadcastFullState(ctx context.Context, roundID *string) error {
	state, err := h.store.FullState(ctx, roundID)
	if err != nil {
		return err
	}
	h.broadcast(EventFullState, state)
	return nil
}
