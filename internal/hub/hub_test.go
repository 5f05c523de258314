package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/store"
)

// fakeStore is an in-memory RaceStore for exercising the hub without a
// database.
type fakeStore struct {
	mu       sync.Mutex
	rounds   []models.Round
	sessions map[string]*fakeSession
	nextID   int
}

type fakeSession struct {
	info       models.SessionInfo
	drivers    []models.Driver
	qualifying []models.QualifyingResult
	race       []models.RaceResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*fakeSession)}
}

func (f *fakeStore) addSession(id string, kind models.SessionKind, driverCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = &fakeSession{info: models.SessionInfo{
		ID:          id,
		Kind:        kind,
		Category:    models.CategoryHeatsAndRace1,
		Status:      models.StatusNotStarted,
		DriverCount: driverCount,
	}}
}

func (f *fakeStore) session(t *testing.T, id string) *fakeSession {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		t.Fatalf("session %q not in fake store", id)
	}
	return s
}

func (f *fakeStore) ListRounds(ctx context.Context) ([]models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Round, len(f.rounds))
	copy(out, f.rounds)
	return out, nil
}

func (f *fakeStore) CreateRound(ctx context.Context, name string, tabLabels *[3]string, classes []models.RaceClass) (*models.Round, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: round name is required", store.ErrInvalid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	round := models.Round{
		ID:        fmt.Sprintf("round-%d", f.nextID),
		Name:      name,
		TabLabels: models.DefaultTabLabels,
		Classes:   models.DefaultClasses,
	}
	if tabLabels != nil {
		round.TabLabels = *tabLabels
	}
	if classes != nil {
		round.Classes = classes
	}
	f.rounds = append(f.rounds, round)
	return &round, nil
}

func (f *fakeStore) UpdateRound(ctx context.Context, id string, patch models.RoundPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rounds {
		if f.rounds[i].ID == id {
			if patch.Name != nil {
				f.rounds[i].Name = *patch.Name
			}
			if patch.TabLabels != nil {
				f.rounds[i].TabLabels = *patch.TabLabels
			}
			if patch.Classes != nil {
				f.rounds[i].Classes = patch.Classes
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteRound(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rounds {
		if f.rounds[i].ID == id {
			f.rounds = append(f.rounds[:i], f.rounds[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) FullState(ctx context.Context, roundID *string) (*models.FullState, error) {
	return &models.FullState{
		Qualifying:    []models.QualifyingSession{},
		HeatsAndRace1: []models.RaceSession{},
		FinalAndRace2: []models.RaceSession{},
	}, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, category models.Category, kind models.SessionKind, raceClass models.RaceClass, label string, roundID *string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("session-%d", f.nextID)
	f.sessions[id] = &fakeSession{info: models.SessionInfo{
		ID: id, Kind: kind, Category: category, RaceClass: raceClass,
		Label: label, Status: models.StatusNotStarted, RoundID: roundID,
	}}
	return id, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*models.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	info := s.info
	return &info, nil
}

func (f *fakeStore) UpdateSessionLabel(ctx context.Context, id, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.info.Label = label
	return nil
}

func (f *fakeStore) UpdateSessionClass(ctx context.Context, id string, raceClass models.RaceClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.info.RaceClass = raceClass
	return nil
}

func (f *fakeStore) SetSessionEndurance(ctx context.Context, id string, endurance bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.info.IsEndurance = endurance
	return nil
}

func (f *fakeStore) AddDriver(ctx context.Context, sessionID, name string) (*models.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	f.nextID++
	driver := models.Driver{ID: fmt.Sprintf("driver-%d", f.nextID), Name: name}
	s.drivers = append(s.drivers, driver)
	s.info.DriverCount = len(s.drivers)
	return &driver, nil
}

func (f *fakeStore) RemoveDriver(ctx context.Context, sessionID, driverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range s.drivers {
		if s.drivers[i].ID == driverID {
			s.drivers = append(s.drivers[:i], s.drivers[i+1:]...)
			s.info.DriverCount = len(s.drivers)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) SaveQualifyingResults(ctx context.Context, sessionID string, results []models.QualifyingResult, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	s.qualifying = results
	s.info.Status = status
	return nil
}

func (f *fakeStore) SaveRaceResults(ctx context.Context, sessionID string, results []models.RaceResult, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	s.race = results
	s.info.Status = status
	return nil
}

func newTestServer(t *testing.T, fs *fakeStore) *httptest.Server {
	t.Helper()
	h := New(fs, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("failed to send %s: %v", event, err)
	}
}

// waitFor reads frames until one with the wanted event arrives, skipping
// connection:count updates that interleave with test traffic.
func waitFor(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("malformed frame while waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
		if env.Event == EventConnectionCount {
			continue
		}
		t.Fatalf("waiting for %s, got %s", event, env.Event)
	}
}

// expectSilence asserts no frame other than connection:count arrives within a
// short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	deadline := time.Now().Add(300 * time.Millisecond)
	for {
		conn.SetReadDeadline(deadline)
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return // timeout is the expected outcome
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err == nil && env.Event == EventConnectionCount {
			continue
		}
		t.Fatalf("expected no frame, got %s", frame)
	}
}

func mustDecode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("failed to decode %s payload: %v", env.Event, err)
	}
	return payload
}

func TestConnectionCountBroadcast(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	c1 := dial(t, srv)
	if p := mustDecode[ConnectionCountPayload](t, waitFor(t, c1, EventConnectionCount)); p.Count != 1 {
		t.Errorf("first client count = %d, want 1", p.Count)
	}

	c2 := dial(t, srv)
	if p := mustDecode[ConnectionCountPayload](t, waitFor(t, c2, EventConnectionCount)); p.Count != 2 {
		t.Errorf("second client count = %d, want 2", p.Count)
	}
	// The first client sees the count move as well. waitFor skips count
	// frames, so read directly here.
	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c1.ReadMessage()
	if err != nil {
		t.Fatalf("first client missed count update: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event != EventConnectionCount {
		t.Fatalf("first client got %s, want %s", frame, EventConnectionCount)
	}
	if p := mustDecode[ConnectionCountPayload](t, env); p.Count != 2 {
		t.Errorf("first client count update = %d, want 2", p.Count)
	}
}

func TestRoundListRepliesToRequesterOnly(t *testing.T) {
	fs := newFakeStore()
	fs.rounds = []models.Round{{ID: "round-1", Name: "Season Opener", TabLabels: models.DefaultTabLabels, Classes: models.DefaultClasses}}
	srv := newTestServer(t, fs)

	c1 := dial(t, srv)
	c2 := dial(t, srv)

	sendEvent(t, c1, EventRoundList, struct{}{})
	rounds := mustDecode[[]models.Round](t, waitFor(t, c1, EventRoundListResult))
	if len(rounds) != 1 || rounds[0].Name != "Season Opener" {
		t.Errorf("round list = %+v", rounds)
	}
	expectSilence(t, c2)
}

func TestRoundAddBroadcastsList(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	c1 := dial(t, srv)
	c2 := dial(t, srv)

	sendEvent(t, c1, EventRoundAdd, RoundAddPayload{Name: "Round 3"})
	for _, c := range []*websocket.Conn{c1, c2} {
		rounds := mustDecode[[]models.Round](t, waitFor(t, c, EventRoundListResult))
		if len(rounds) != 1 || rounds[0].Name != "Round 3" {
			t.Errorf("round list after add = %+v", rounds)
		}
	}
}

func TestQualifyingSaveDerivesAndBroadcasts(t *testing.T) {
	fs := newFakeStore()
	fs.addSession("q-1", models.KindQualifying, 2)
	srv := newTestServer(t, fs)

	c1 := dial(t, srv)
	c2 := dial(t, srv)

	sendEvent(t, c1, EventQualifyingSave, QualifyingSavePayload{
		RaceID: "q-1",
		Results: []models.QualifyingResult{
			{DriverID: "d-1", DriverName: "Anna", BestLap: "43.100"},
			{DriverID: "d-2", DriverName: "Ben", BestLap: "42.350"},
		},
	})

	for _, c := range []*websocket.Conn{c1, c2} {
		p := mustDecode[QualifyingSavedPayload](t, waitFor(t, c, EventQualifyingSaved))
		if p.RaceID != "q-1" {
			t.Fatalf("raceId = %q", p.RaceID)
		}
		if p.Status != models.StatusCompleted {
			t.Errorf("status = %q, want completed", p.Status)
		}
		if p.Results[0].Position == nil || *p.Results[0].Position != 2 {
			t.Errorf("slower driver position = %v, want 2", p.Results[0].Position)
		}
		if p.Results[1].BestLap != "00:42.350" {
			t.Errorf("best lap not canonicalized: %q", p.Results[1].BestLap)
		}
	}

	saved := fs.session(t, "q-1")
	if saved.info.Status != models.StatusCompleted || len(saved.qualifying) != 2 {
		t.Errorf("store state after save: status %q, %d results", saved.info.Status, len(saved.qualifying))
	}
}

func TestRaceSaveUsesCardOrder(t *testing.T) {
	fs := newFakeStore()
	fs.addSession("r-1", models.KindHeat, 2)
	srv := newTestServer(t, fs)

	c1 := dial(t, srv)

	sendEvent(t, c1, EventRaceSave, RaceSavePayload{
		RaceID: "r-1",
		Results: []models.RaceResult{
			{DriverID: "d-2", DriverName: "Ben", BestLap: "42.350", Gap: "0.8"},
			{DriverID: "d-1", DriverName: "Anna", BestLap: "43.100", Gap: "1.2"},
		},
	})

	p := mustDecode[RaceSavedPayload](t, waitFor(t, c1, EventRaceSaved))
	if *p.Results[0].Position != 1 || *p.Results[1].Position != 2 {
		t.Errorf("card order not preserved: %v, %v", p.Results[0].Position, p.Results[1].Position)
	}
	if p.Results[0].Gap != "--" {
		t.Errorf("leader gap = %q, want sentinel", p.Results[0].Gap)
	}
	if p.Results[1].Gap != "+1.2" {
		t.Errorf("second gap = %q, want +1.2", p.Results[1].Gap)
	}
	if p.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed", p.Status)
	}
}

func TestSaveLastWriteWins(t *testing.T) {
	fs := newFakeStore()
	fs.addSession("r-1", models.KindRace, 1)
	srv := newTestServer(t, fs)

	c1 := dial(t, srv)

	first := RaceSavePayload{RaceID: "r-1", Results: []models.RaceResult{{DriverID: "d-1", BestLap: "43.100"}}}
	second := RaceSavePayload{RaceID: "r-1", Results: []models.RaceResult{{DriverID: "d-1", BestLap: "42.350"}}}
	sendEvent(t, c1, EventRaceSave, first)
	sendEvent(t, c1, EventRaceSave, second)

	p1 := mustDecode[RaceSavedPayload](t, waitFor(t, c1, EventRaceSaved))
	p2 := mustDecode[RaceSavedPayload](t, waitFor(t, c1, EventRaceSaved))
	if p1.Results[0].BestLap != "00:43.100" || p2.Results[0].BestLap != "00:42.350" {
		t.Errorf("broadcasts out of order: %q then %q", p1.Results[0].BestLap, p2.Results[0].BestLap)
	}

	saved := fs.session(t, "r-1")
	if saved.race[0].BestLap != "00:42.350" {
		t.Errorf("store kept %q, want the later write", saved.race[0].BestLap)
	}
}

func TestSaveUnknownSessionErrorsRequesterOnly(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	c1 := dial(t, srv)
	c2 := dial(t, srv)

	sendEvent(t, c1, EventRaceSave, RaceSavePayload{RaceID: "missing"})
	p := mustDecode[ErrorPayload](t, waitFor(t, c1, EventError))
	if p.Code != codeNotFound || p.Event != EventRaceSave {
		t.Errorf("error payload = %+v", p)
	}
	expectSilence(t, c2)
}

func TestSaveKindMismatchRejected(t *testing.T) {
	fs := newFakeStore()
	fs.addSession("q-1", models.KindQualifying, 1)
	srv := newTestServer(t, fs)

	c1 := dial(t, srv)

	sendEvent(t, c1, EventRaceSave, RaceSavePayload{RaceID: "q-1"})
	p := mustDecode[ErrorPayload](t, waitFor(t, c1, EventError))
	if p.Code != codeInvalid {
		t.Errorf("error code = %q, want %q", p.Code, codeInvalid)
	}
}

func TestMalformedEnvelopeRejected(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	c1 := dial(t, srv)

	if err := c1.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	p := mustDecode[ErrorPayload](t, waitFor(t, c1, EventError))
	if p.Code != codeInvalid {
		t.Errorf("error code = %q, want %q", p.Code, codeInvalid)
	}
}

func TestDriverAddBroadcastsDelta(t *testing.T) {
	fs := newFakeStore()
	fs.addSession("r-1", models.KindHeat, 0)
	srv := newTestServer(t, fs)

	c1 := dial(t, srv)
	c2 := dial(t, srv)

	sendEvent(t, c1, EventDriverAdd, DriverAddPayload{RaceID: "r-1", Name: "Anna"})
	for _, c := range []*websocket.Conn{c1, c2} {
		p := mustDecode[DriverAddedPayload](t, waitFor(t, c, EventDriverAdded))
		if p.RaceID != "r-1" || p.Driver.Name != "Anna" || p.Driver.ID == "" {
			t.Errorf("driver added payload = %+v", p)
		}
	}
}

// A client can drop with a request of its own still queued: readPump enqueues,
// the peer disconnects, unregister runs, and only then does the dispatch loop
// get to the request. Delivering to the gone client must be a silent no-op,
// not a crash of the dispatch goroutine.
func TestDispatchAfterDisconnect(t *testing.T) {
	h := New(newFakeStore(), DefaultConfig())
	c := &Conn{
		id:   "conn-test",
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		hub:  h,
	}
	h.register(c)
	h.unregister(c)

	h.dispatch(context.Background(), c, Envelope{Event: EventRoundList})

	select {
	case <-c.done:
	default:
		t.Error("done channel not closed by unregister")
	}
	// A second unregister (writePump and readPump both defer one) is a no-op.
	h.unregister(c)
}

func TestBroadcastAfterDisconnect(t *testing.T) {
	h := New(newFakeStore(), DefaultConfig())
	c := &Conn{
		id:   "conn-test",
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		hub:  h,
	}
	h.register(c)
	h.unregister(c)

	h.broadcast(EventConnectionCount, ConnectionCountPayload{Count: 0})
	h.sendTo(c, EventRoundListResult, []models.Round{})
}

func TestEnqueueUnblocksAfterShutdown(t *testing.T) {
	h := New(newFakeStore(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not shut down")
	}

	// Pack the queue so a bare channel send would block forever.
	for i := 0; i < cap(h.requests); i++ {
		select {
		case h.requests <- request{}:
		default:
		}
	}

	c := &Conn{id: "conn-test", send: make(chan []byte, 1), done: make(chan struct{}), hub: h}
	result := make(chan bool, 1)
	go func() { result <- h.enqueue(c, Envelope{Event: EventRoundList}) }()

	select {
	case ok := <-result:
		if ok {
			t.Error("enqueue reported success after shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked after shutdown")
	}
}

func TestRequestFullRepliesToRequesterOnly(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	c1 := dial(t, srv)
	c2 := dial(t, srv)

	sendEvent(t, c1, EventRequestFull, RequestFullPayload{})
	state := mustDecode[models.FullState](t, waitFor(t, c1, EventFullState))
	if state.Qualifying == nil || state.HeatsAndRace1 == nil || state.FinalAndRace2 == nil {
		t.Errorf("full state buckets must be non-nil: %+v", state)
	}
	expectSilence(t, c2)
}
