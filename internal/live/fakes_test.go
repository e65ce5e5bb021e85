package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

type fakePollStore struct {
	mu    sync.Mutex
	polls map[uuid.UUID]*models.Poll
	err   error
}

func newFakePollStore(polls ...*models.Poll) *fakePollStore {
	s := &fakePollStore{polls: make(map[uuid.UUID]*models.Poll)}
	for _, p := range polls {
		s.polls[p.ID] = p
	}
	return s
}

func (s *fakePollStore) GetByID(_ context.Context, id uuid.UUID) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.polls[id], nil
}

type fakeHistoryStore struct {
	mu           sync.Mutex
	histories    map[uuid.UUID]*models.History
	finished     map[uuid.UUID]map[string]*models.FinishedQuestion
	participants map[uuid.UUID][]models.Participant
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{
		histories:    make(map[uuid.UUID]*models.History),
		finished:     make(map[uuid.UUID]map[string]*models.FinishedQuestion),
		participants: make(map[uuid.UUID][]models.Participant),
	}
}

func (s *fakeHistoryStore) Create(_ context.Context, h *models.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.histories[h.ID] = &cp
	return nil
}

func (s *fakeHistoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[id]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (s *fakeHistoryStore) FindActiveByTeacher(_ context.Context, teacherID uuid.UUID) (*models.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.histories {
		if h.TeacherID == teacherID && h.EndedAt == nil {
			cp := *h
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeHistoryStore) AppendFinishedQuestion(_ context.Context, historyID uuid.UUID, fq *models.FinishedQuestion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished[historyID] == nil {
		s.finished[historyID] = make(map[string]*models.FinishedQuestion)
	}
	if _, ok := s.finished[historyID][fq.QuestionID]; ok {
		return false, nil
	}
	cp := *fq
	s.finished[historyID][fq.QuestionID] = &cp
	return true, nil
}

func (s *fakeHistoryStore) AddParticipant(_ context.Context, historyID uuid.UUID, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[historyID] = append(s.participants[historyID], *p)
	return nil
}

func (s *fakeHistoryStore) SetEndedAt(_ context.Context, historyID uuid.UUID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[historyID]; ok && h.EndedAt == nil {
		t := endedAt
		h.EndedAt = &t
	}
	return nil
}

func (s *fakeHistoryStore) finishedCount(historyID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished[historyID])
}

func (s *fakeHistoryStore) finishedQuestion(historyID uuid.UUID, questionID string) *models.FinishedQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	fq, ok := s.finished[historyID][questionID]
	if !ok {
		return nil
	}
	cp := *fq
	return &cp
}

type fakeStudentStore struct {
	mu       sync.Mutex
	sessions map[string]*models.StudentSession
	events   []models.SessionEvent
}

func newFakeStudentStore() *fakeStudentStore {
	return &fakeStudentStore{sessions: make(map[string]*models.StudentSession)}
}

func (s *fakeStudentStore) Get(_ context.Context, sessionID string) (*models.StudentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *ss
	cp.AnsweredFor = make(map[string]string, len(ss.AnsweredFor))
	for k, v := range ss.AnsweredFor {
		cp.AnsweredFor[k] = v
	}
	return &cp, nil
}

func (s *fakeStudentStore) Create(_ context.Context, ss *models.StudentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ss
	if cp.AnsweredFor == nil {
		cp.AnsweredFor = make(map[string]string)
	}
	s.sessions[ss.SessionID] = &cp
	return nil
}

func (s *fakeStudentStore) SetConnected(_ context.Context, sessionID string, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.sessions[sessionID]; ok {
		ss.Connected = connected
	}
	return nil
}

func (s *fakeStudentStore) SetKicked(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.sessions[sessionID]; ok {
		ss.Kicked = true
		ss.Connected = false
	}
	return nil
}

func (s *fakeStudentStore) SetAnswered(_ context.Context, sessionID, questionID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.sessions[sessionID]; ok {
		ss.AnsweredFor[questionID] = optionID
	}
	return nil
}

func (s *fakeStudentStore) ListConnected(_ context.Context, historyID uuid.UUID) ([]models.StudentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StudentSession
	for _, ss := range s.sessions {
		if ss.HistoryID == historyID && ss.Connected && !ss.Kicked {
			out = append(out, *ss)
		}
	}
	return out, nil
}

func (s *fakeStudentStore) AppendEvent(_ context.Context, sessionID string, historyID uuid.UUID, event, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, models.SessionEvent{
		SessionID: sessionID,
		HistoryID: historyID,
		Event:     event,
		Details:   details,
	})
	return nil
}

type voteKey struct {
	historyID  uuid.UUID
	questionID string
	sessionID  string
}

type fakeVoteStore struct {
	mu    sync.Mutex
	votes map[voteKey]string // -> optionID
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{votes: make(map[voteKey]string)}
}

func (s *fakeVoteStore) Insert(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{historyID: v.HistoryID, questionID: v.QuestionID, sessionID: v.SessionID}
	if _, ok := s.votes[key]; ok {
		return ErrDuplicateVote
	}
	s.votes[key] = v.OptionID
	return nil
}

func (s *fakeVoteStore) Tally(_ context.Context, historyID uuid.UUID, questionID string) (map[string]int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tallies := make(map[string]int)
	total := 0
	for key, optionID := range s.votes {
		if key.historyID == historyID && key.questionID == questionID {
			tallies[optionID]++
			total++
		}
	}
	return tallies, total, nil
}

type broadcastRecord struct {
	Room    string
	Event   string
	Payload interface{}
}

type directRecord struct {
	Room     string
	ClientID string
	Event    string
	Payload  interface{}
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	broadcast []broadcastRecord
	direct    []directRecord
	closed    []string // clientIDs
}

func newFakeBroadcaster() *fakeBroadcaster { return &fakeBroadcaster{} }

func (b *fakeBroadcaster) BroadcastToRoom(room, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, broadcastRecord{Room: room, Event: event, Payload: payload})
}

func (b *fakeBroadcaster) SendToClient(room, clientID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct = append(b.direct, directRecord{Room: room, ClientID: clientID, Event: event, Payload: payload})
}

func (b *fakeBroadcaster) CloseClient(_, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, clientID)
}

func (b *fakeBroadcaster) countEvent(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.broadcast {
		if r.Event == event {
			n++
		}
	}
	return n
}

func (b *fakeBroadcaster) lastPayload(event string) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.broadcast) - 1; i >= 0; i-- {
		if b.broadcast[i].Event == event {
			return b.broadcast[i].Payload
		}
	}
	return nil
}

func (b *fakeBroadcaster) closedClients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closed...)
}
