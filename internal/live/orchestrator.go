package live

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Options tunes orchestrator timing.
type Options struct {
	// AllAnsweredGrace is how long to wait after every connected student has
	// answered before ending the question early.
	AllAnsweredGrace time.Duration
	// DefaultQuestionTime is used when neither the ask request nor the
	// question carries a time limit.
	DefaultQuestionTime time.Duration
}

// Orchestrator coordinates live poll sessions: the session registry, question
// timers, vote tallying, roster upkeep, and room broadcasts. All durable facts
// flow through the injected stores; tallies are always recomputed from vote
// rows, never from an in-memory counter.
type Orchestrator struct {
	registry *Registry
	timers   *TimerManager
	clock    clockwork.Clock

	polls     PollStore
	histories HistoryStore
	students  StudentSessionStore
	votes     VoteStore
	bcast     Broadcaster

	logger *zap.Logger
	opts   Options
}

// NewOrchestrator wires an orchestrator with its collaborators.
func NewOrchestrator(
	clock clockwork.Clock,
	polls PollStore,
	histories HistoryStore,
	students StudentSessionStore,
	votes VoteStore,
	bcast Broadcaster,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	if opts.AllAnsweredGrace <= 0 {
		opts.AllAnsweredGrace = 2 * time.Second
	}
	if opts.DefaultQuestionTime <= 0 {
		opts.DefaultQuestionTime = 60 * time.Second
	}
	return &Orchestrator{
		registry:  NewRegistry(),
		timers:    NewTimerManager(clock, logger),
		clock:     clock,
		polls:     polls,
		histories: histories,
		students:  students,
		votes:     votes,
		bcast:     bcast,
		logger:    logger,
		opts:      opts,
	}
}

// Registry exposes the live session registry (health reporting, gateway).
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// StartSession creates the durable History and the live session. Fails with
// ErrStateConflict while the teacher still owns an unended History.
func (o *Orchestrator) StartSession(ctx context.Context, pollID, teacherID uuid.UUID) (*ActiveSession, error) {
	poll, err := o.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("load poll %s: %w", pollID, err)
	}
	if poll == nil {
		return nil, fmt.Errorf("poll %s: %w", pollID, ErrNotFound)
	}

	active, err := o.histories.FindActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("find active history: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("you already have an active session, end it before starting a new one: %w", ErrStateConflict)
	}

	h := &models.History{
		ID:        uuid.New(),
		PollID:    pollID,
		TeacherID: teacherID,
		Title:     poll.Title,
		CreatedAt: o.clock.Now(),
	}
	if err := o.histories.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("create history: %w", err)
	}

	sess := newActiveSession(poll, h.ID, teacherID)
	o.registry.Put(sess)
	o.logger.Info("session started",
		zap.String("history_id", h.ID.String()),
		zap.String("poll_id", pollID.String()),
		zap.String("teacher_id", teacherID.String()),
	)
	return sess, nil
}

// AskQuestion activates a question: valid only while no question is active and
// the question has not been asked before. Broadcasts the question and arms its
// auto-termination timer.
func (o *Orchestrator) AskQuestion(ctx context.Context, teacherID, historyID uuid.UUID, questionID string, timeLimitSec int) (*QuestionStartedPayload, error) {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", historyID, ErrNotFound)
	}
	if sess.TeacherID != teacherID {
		return nil, fmt.Errorf("only the session owner can ask questions: %w", ErrUnauthorized)
	}

	q := sess.poll.QuestionByID(questionID)
	if q == nil {
		return nil, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}

	limit := timeLimitSec
	if limit <= 0 {
		limit = q.TimeLimitSec
	}
	if limit <= 0 {
		limit = sess.poll.DefaultTimeLimitSec
	}
	if limit <= 0 {
		limit = int(o.opts.DefaultQuestionTime / time.Second)
	}

	if err := sess.beginQuestion(questionID, o.clock.Now()); err != nil {
		return nil, err
	}

	// Defensive: a stale timer under this key would end the fresh question.
	o.timers.Cancel(historyID, questionID)
	o.timers.Schedule(historyID, questionID, time.Duration(limit)*time.Second, func() {
		if err := o.endQuestion(context.Background(), historyID, questionID); err != nil {
			o.logger.Warn("timer-driven end failed",
				zap.String("history_id", historyID.String()),
				zap.String("question_id", questionID),
				zap.Error(err),
			)
		}
	})

	o.bcast.BroadcastToRoom(sess.Room, EventNewQuestion, NewQuestionPayload{
		PollID:      sess.PollID,
		HistoryID:   historyID,
		QuestionID:  questionID,
		Text:        q.Text,
		Options:     q.Options,
		TimeLeftSec: limit,
	})
	o.broadcastStudentList(ctx, sess)

	o.logger.Info("question asked",
		zap.String("history_id", historyID.String()),
		zap.String("question_id", questionID),
		zap.Int("time_limit_sec", limit),
	)
	return &QuestionStartedPayload{QuestionID: questionID, TimeLeftSec: limit}, nil
}

// EndQuestion is the teacher-triggered end. Timer expiry and the all-answered
// fast path call endQuestion directly; all three triggers converge on the same
// idempotent finalization.
func (o *Orchestrator) EndQuestion(ctx context.Context, teacherID, historyID uuid.UUID, questionID string) error {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", historyID, ErrNotFound)
	}
	if sess.TeacherID != teacherID {
		return fmt.Errorf("only the session owner can end questions: %w", ErrUnauthorized)
	}
	return o.endQuestion(ctx, historyID, questionID)
}

// endQuestion finalizes a question exactly once. Racing triggers are resolved
// by the durable already-finalized check, which makes the extra calls no-ops.
func (o *Orchestrator) endQuestion(ctx context.Context, historyID uuid.UUID, questionID string) error {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", historyID, ErrNotFound)
	}
	o.timers.Cancel(historyID, questionID)

	q := sess.poll.QuestionByID(questionID)
	if q == nil {
		return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}

	tallies, total, err := o.votes.Tally(ctx, historyID, questionID)
	if err != nil {
		return fmt.Errorf("tally votes: %w", err)
	}

	startedAt, asked := sess.finishQuestion(questionID)
	if !asked {
		return fmt.Errorf("question %s was never asked: %w", questionID, ErrNotFound)
	}

	inserted, err := o.histories.AppendFinishedQuestion(ctx, historyID, &models.FinishedQuestion{
		QuestionID:   questionID,
		QuestionText: q.Text,
		Options:      q.Options,
		Tallies:      tallies,
		TotalVotes:   total,
		StartedAt:    startedAt,
		EndedAt:      o.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("finalize question: %w", err)
	}
	if !inserted {
		// Lost the race against another trigger; the winner already broadcast.
		return nil
	}

	o.bcast.BroadcastToRoom(sess.Room, EventResultsFinal, ResultsPayload{
		PollID:     sess.PollID,
		HistoryID:  historyID,
		QuestionID: questionID,
		Tallies:    tallies,
		TotalVotes: total,
	})
	o.broadcastStudentList(ctx, sess)
	o.checkCompletion(sess)

	o.logger.Info("question ended",
		zap.String("history_id", historyID.String()),
		zap.String("question_id", questionID),
		zap.Int("total_votes", total),
	)
	return nil
}

// checkCompletion transitions to Completed once every poll question has been
// asked. The session stays in the registry: the teacher must still end it.
func (o *Orchestrator) checkCompletion(sess *ActiveSession) {
	if sess.askedCount() < len(sess.poll.Questions) {
		return
	}
	if !sess.markCompleted() {
		return
	}
	o.bcast.BroadcastToRoom(sess.Room, EventSessionCompleted, SessionCompletedPayload{
		HistoryID: sess.HistoryID,
		Message:   "Session completed! Check history for results.",
	})
	o.logger.Info("session completed", zap.String("history_id", sess.HistoryID.String()))
}

// EndSession sets endedAt, tears down live state, and notifies the room.
// When the live session is already gone (e.g. after a teacher reconnect), the
// owning teacher may still close the durable History.
func (o *Orchestrator) EndSession(ctx context.Context, teacherID, historyID uuid.UUID) error {
	sess := o.registry.Get(historyID)
	if sess == nil {
		h, err := o.histories.GetByID(ctx, historyID)
		if err != nil || h == nil {
			return fmt.Errorf("session %s: %w", historyID, ErrNotFound)
		}
		if h.TeacherID != teacherID {
			return fmt.Errorf("only the session owner can end it: %w", ErrUnauthorized)
		}
		if h.EndedAt != nil {
			return nil
		}
		return o.histories.SetEndedAt(ctx, historyID, o.clock.Now())
	}
	if sess.TeacherID != teacherID {
		return fmt.Errorf("only the session owner can end it: %w", ErrUnauthorized)
	}

	if err := o.histories.SetEndedAt(ctx, historyID, o.clock.Now()); err != nil {
		return fmt.Errorf("set ended at: %w", err)
	}
	o.timers.CancelAll(historyID)
	o.registry.Delete(historyID)
	o.bcast.BroadcastToRoom(sess.Room, EventSessionEnded, SessionEndedPayload{HistoryID: historyID})
	o.logger.Info("session ended", zap.String("history_id", historyID.String()))
	return nil
}

// TeardownTeacher cleans up live state for every session the disconnected
// teacher owns: timers cancelled, registry entries removed, no end notice.
// The durable History is left unended so the teacher can close it after
// reconnecting (EndSession handles that path).
func (o *Orchestrator) TeardownTeacher(teacherID uuid.UUID) {
	for _, sess := range o.registry.ListByTeacher(teacherID) {
		o.timers.CancelAll(sess.HistoryID)
		o.registry.Delete(sess.HistoryID)
		o.logger.Warn("session abandoned on teacher disconnect",
			zap.String("history_id", sess.HistoryID.String()),
			zap.String("teacher_id", teacherID.String()),
		)
	}
}

// Join admits a student into a live session, upserting the durable student
// session and the live roster. Kicked students are rejected permanently.
func (o *Orchestrator) Join(ctx context.Context, userID, historyID uuid.UUID, name, sessionID, clientID string) (*models.StudentSession, error) {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return nil, fmt.Errorf("session not found or not active: %w", ErrNotFound)
	}

	teaching, err := o.histories.FindActiveByTeacher(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active history: %w", err)
	}
	if teaching != nil {
		return nil, fmt.Errorf("you cannot join as student while teaching a session: %w", ErrStateConflict)
	}

	ss, err := o.students.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load student session: %w", err)
	}
	now := o.clock.Now()
	if ss != nil {
		if ss.Kicked {
			return nil, fmt.Errorf("you have been removed from this poll: %w", ErrUnauthorized)
		}
		if err := o.students.SetConnected(ctx, sessionID, true); err != nil {
			return nil, fmt.Errorf("reconnect student session: %w", err)
		}
		ss.Connected = true
		_ = o.students.AppendEvent(ctx, sessionID, historyID, "reconnected", "Student reconnected")
	} else {
		ss = &models.StudentSession{
			SessionID:   sessionID,
			PollID:      sess.PollID,
			HistoryID:   historyID,
			Name:        name,
			UserID:      userID,
			Connected:   true,
			AnsweredFor: make(map[string]string),
			CreatedAt:   now,
		}
		if err := o.students.Create(ctx, ss); err != nil {
			return nil, fmt.Errorf("create student session: %w", err)
		}
		_ = o.students.AppendEvent(ctx, sessionID, historyID, "joined", "Student joined session")
		if err := o.histories.AddParticipant(ctx, historyID, &models.Participant{
			SessionID: sessionID,
			Name:      name,
			UserID:    userID,
			JoinedAt:  now,
		}); err != nil {
			o.logger.Warn("add participant", zap.String("history_id", historyID.String()), zap.Error(err))
		}
	}

	// Carry the answered flag forward so a reconnect can neither dodge an
	// already-recorded answer nor be counted twice.
	answered := false
	if cur := sess.currentQuestion(); cur != "" {
		_, answered = ss.AnsweredFor[cur]
	}
	sess.upsertParticipant(sessionID, ss.Name, clientID, answered)
	o.broadcastStudentList(ctx, sess)

	o.logger.Info("student joined",
		zap.String("history_id", historyID.String()),
		zap.String("session_id", sessionID),
	)
	return ss, nil
}

// SubmitAnswer records a vote with at-most-once semantics per student per
// question, then rebroadcasts roster and incremental results. When every
// connected student has voted, the question ends early after a grace delay.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, historyID uuid.UUID, questionID, optionID, sessionID string) error {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", historyID, ErrNotFound)
	}
	ss, err := o.students.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load student session: %w", err)
	}
	if ss == nil {
		return fmt.Errorf("student session %s: %w", sessionID, ErrNotFound)
	}
	if ss.Kicked {
		return fmt.Errorf("you have been removed from this poll: %w", ErrUnauthorized)
	}
	if sess.poll.QuestionByID(questionID) == nil {
		return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}

	if err := o.votes.Insert(ctx, &models.Vote{
		PollID:     sess.PollID,
		HistoryID:  historyID,
		QuestionID: questionID,
		SessionID:  sessionID,
		OptionID:   optionID,
		CreatedAt:  o.clock.Now(),
	}); err != nil {
		return err
	}

	if err := o.students.SetAnswered(ctx, sessionID, questionID, optionID); err != nil {
		o.logger.Warn("mark answered", zap.String("session_id", sessionID), zap.Error(err))
	}
	_ = o.students.AppendEvent(ctx, sessionID, historyID, "answered", "Answered question "+questionID)
	sess.markAnswered(sessionID)
	o.broadcastStudentList(ctx, sess)

	tallies, total, err := o.votes.Tally(ctx, historyID, questionID)
	if err != nil {
		// Skip this broadcast cycle; the next vote or the timer recovers.
		o.logger.Warn("tally votes", zap.String("history_id", historyID.String()), zap.Error(err))
		return nil
	}
	o.bcast.BroadcastToRoom(sess.Room, EventResultsUpdate, ResultsPayload{
		PollID:     sess.PollID,
		HistoryID:  historyID,
		QuestionID: questionID,
		Tallies:    tallies,
		TotalVotes: total,
	})

	// All-answered fast path: distinct voters vs connected, non-kicked roster.
	if n := sess.participantCount(); n > 0 && total >= n && sess.currentQuestion() == questionID {
		o.bcast.BroadcastToRoom(sess.Room, EventAllAnswered, AllAnsweredPayload{
			PollID:     sess.PollID,
			HistoryID:  historyID,
			QuestionID: questionID,
		})
		o.timers.Schedule(historyID, questionID, o.opts.AllAnsweredGrace, func() {
			if err := o.endQuestion(context.Background(), historyID, questionID); err != nil {
				o.logger.Warn("all-answered end failed",
					zap.String("history_id", historyID.String()),
					zap.String("question_id", questionID),
					zap.Error(err),
				)
			}
		})
	}
	return nil
}

// Kick permanently removes a student from the session: the durable record is
// marked kicked (sticky), the live connection is told and force-closed, and
// the roster is rebroadcast.
func (o *Orchestrator) Kick(ctx context.Context, teacherID, historyID uuid.UUID, sessionID string) error {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", historyID, ErrNotFound)
	}
	if sess.TeacherID != teacherID {
		return fmt.Errorf("only the session owner can remove students: %w", ErrUnauthorized)
	}

	if err := o.students.SetKicked(ctx, sessionID); err != nil {
		return fmt.Errorf("kick student: %w", err)
	}
	_ = o.students.AppendEvent(ctx, sessionID, historyID, "kicked", "Kicked by teacher")

	if clientID, ok := sess.removeParticipant(sessionID); ok && clientID != "" {
		o.bcast.SendToClient(sess.Room, clientID, EventKicked, KickedPayload{Reason: "Removed by teacher"})
		o.bcast.CloseClient(sess.Room, clientID)
	}
	o.broadcastStudentList(ctx, sess)

	o.logger.Info("student kicked",
		zap.String("history_id", historyID.String()),
		zap.String("session_id", sessionID),
	)
	return nil
}

// DisconnectStudent handles voluntary leave and network loss: the durable
// record is marked disconnected (kicked stays unset, rejoining is allowed)
// and the roster is rebroadcast.
func (o *Orchestrator) DisconnectStudent(ctx context.Context, historyID uuid.UUID, sessionID string) {
	if err := o.students.SetConnected(ctx, sessionID, false); err != nil {
		o.logger.Warn("disconnect student", zap.String("session_id", sessionID), zap.Error(err))
	}
	_ = o.students.AppendEvent(ctx, sessionID, historyID, "disconnected", "Student disconnected")

	sess := o.registry.Get(historyID)
	if sess == nil {
		return
	}
	sess.removeParticipant(sessionID)
	o.broadcastStudentList(ctx, sess)
}

// Chat relays a transient message to the room. Only the owning teacher or a
// live, non-kicked participant may send; teacher messages carry a host tag.
func (o *Orchestrator) Chat(ctx context.Context, userID, historyID uuid.UUID, sessionID, from, text string) error {
	sess := o.registry.Get(historyID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", historyID, ErrNotFound)
	}

	isTeacher := sess.TeacherID == userID
	if !isTeacher {
		if sessionID == "" {
			return fmt.Errorf("not part of this session: %w", ErrUnauthorized)
		}
		ss, err := o.students.Get(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load student session: %w", err)
		}
		if ss == nil || ss.HistoryID != historyID {
			return fmt.Errorf("not part of this session: %w", ErrUnauthorized)
		}
		if ss.Kicked {
			return fmt.Errorf("you cannot send messages after being removed: %w", ErrUnauthorized)
		}
	}

	if isTeacher {
		from += " (Host)"
	}
	o.bcast.BroadcastToRoom(sess.Room, EventChatReceive, ChatMessagePayload{
		From:      from,
		Text:      text,
		Timestamp: o.clock.Now(),
	})
	return nil
}

// broadcastStudentList recomputes the roster from durable rows and
// rebroadcasts the full state so every client converges on one view.
// A store failure skips the cycle; the next roster change recovers.
func (o *Orchestrator) broadcastStudentList(ctx context.Context, sess *ActiveSession) {
	sessions, err := o.students.ListConnected(ctx, sess.HistoryID)
	if err != nil {
		o.logger.Warn("list students", zap.String("history_id", sess.HistoryID.String()), zap.Error(err))
		return
	}
	cur := sess.currentQuestion()
	students := make([]StudentEntry, 0, len(sessions))
	for _, ss := range sessions {
		answered := false
		if cur != "" {
			_, answered = ss.AnsweredFor[cur]
		}
		students = append(students, StudentEntry{
			SessionID: ss.SessionID,
			Name:      ss.Name,
			Connected: ss.Connected,
			Answered:  answered,
		})
	}
	o.bcast.BroadcastToRoom(sess.Room, EventStudentList, StudentListPayload{Students: students})
}
