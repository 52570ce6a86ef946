// Package journal coordinates entry submission: classify, look up recent
// affirmations, generate a new one, persist and hand back where to navigate.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/affirmations"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/mood"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HistoryWindow is how many recent entries feed the non-repetition history.
const HistoryWindow = 10

const defaultGenerationTimeout = 20 * time.Second

const (
	noticeLevelDefault     = "default"
	noticeLevelDestructive = "destructive"
)

// State is the per-user submission state. Succeeded and Failed are reported
// through Submit's return value and logs; once a submission resolves the user
// is Idle again.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var (
	// ErrValidation rejects text below the minimum length before any side effect.
	ErrValidation = errors.New("journal: invalid entry text")
	// ErrUnauthenticated rejects submissions without a user.
	ErrUnauthenticated = errors.New("journal: no authenticated user")
	// ErrSubmissionInProgress rejects a second submission while one is running.
	ErrSubmissionInProgress = errors.New("journal: submission already in progress")
	// ErrStoreUnavailable aborts a submission whose history lookup failed.
	ErrStoreUnavailable = errors.New("journal: entry store unavailable")
	// ErrPersistenceFailed aborts a submission whose write failed.
	ErrPersistenceFailed = errors.New("journal: entry could not be saved")
	// ErrDeleteNotConfirmed rejects deletions issued without confirmation.
	ErrDeleteNotConfirmed = errors.New("journal: deletion not confirmed")

	errMissingEntryStore = errors.New("journal: entry store is required")
	errMissingGenerator  = errors.New("journal: generator is required")
	errMissingMoods      = errors.New("journal: mood registry is required")
)

// EntryStore is the subset of the persistence gateway the orchestrator uses.
type EntryStore interface {
	Create(ctx context.Context, input entries.NewEntry) (entries.Entry, error)
	ListRecent(ctx context.Context, userID entries.UserID, limit int) ([]entries.Entry, error)
	Delete(ctx context.Context, userID entries.UserID, entryID entries.EntryID) error
}

// MoodRegistry resolves the mood layout of a session.
type MoodRegistry interface {
	Mount(sessionKey string) *mood.Layout
}

// Notifier publishes user-visible notices.
type Notifier interface {
	Publish(message realtime.Message)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Classifier        sentiment.Classifier
	Entries           EntryStore
	Generator         affirmations.Generator
	Moods             MoodRegistry
	Notifier          Notifier
	Tasks             *Runner
	GenerationTimeout time.Duration
	GenerationRetry   RetryPolicy
	WriteRetry        RetryPolicy
	Logger            *zap.Logger
}

// Submission is one validated-or-not form submission.
type Submission struct {
	UserID     string
	SessionKey string
	Text       string
}

// Result describes a successful submission.
type Result struct {
	Entry                entries.Entry
	Location             string
	AffirmationDegraded  bool
	PreviousAffirmations int
}

// Orchestrator runs the submission pipeline and tracks per-user state.
type Orchestrator struct {
	classifier        sentiment.Classifier
	entries           EntryStore
	generator         affirmations.Generator
	moods             MoodRegistry
	notifier          Notifier
	tasks             *Runner
	generationTimeout time.Duration
	generationRetry   RetryPolicy
	writeRetry        RetryPolicy
	logger            *zap.Logger

	// inFlight holds only users with a running submission.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewOrchestrator validates the configuration.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Entries == nil {
		return nil, errMissingEntryStore
	}
	if cfg.Generator == nil {
		return nil, errMissingGenerator
	}
	if cfg.Moods == nil {
		return nil, errMissingMoods
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = sentiment.NewLexiconClassifier(nil)
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tasks := cfg.Tasks
	if tasks == nil {
		tasks = NewRunner(cfg.Notifier, logger, 0)
	}
	return &Orchestrator{
		classifier:        classifier,
		entries:           cfg.Entries,
		generator:         cfg.Generator,
		moods:             cfg.Moods,
		notifier:          cfg.Notifier,
		tasks:             tasks,
		generationTimeout: timeout,
		generationRetry:   cfg.GenerationRetry,
		writeRetry:        cfg.WriteRetry,
		logger:            logger,
		inFlight:          make(map[string]struct{}),
	}, nil
}

// State reports the user's current submission state.
func (o *Orchestrator) State(userID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[userID]; ok {
		return StateSubmitting
	}
	return StateIdle
}

// Submit runs the pipeline. The work is detached from ctx's cancellation: a client
// that goes away mid-submission does not stop the entry from being saved.
func (o *Orchestrator) Submit(ctx context.Context, submission Submission) (Result, error) {
	if err := entries.ValidateText(submission.Text); err != nil {
		submissionsTotal.WithLabelValues(outcomeRejected).Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	userID, err := entries.NewUserID(submission.UserID)
	if err != nil {
		submissionsTotal.WithLabelValues(outcomeRejected).Inc()
		o.notify(submission.UserID, "Not authenticated", "You must be logged in to create an entry.")
		return Result{}, ErrUnauthenticated
	}
	if !o.begin(userID.String()) {
		submissionsTotal.WithLabelValues(outcomeRejected).Inc()
		return Result{}, ErrSubmissionInProgress
	}

	result, err := o.run(context.WithoutCancel(ctx), userID, submission)
	if err != nil {
		o.finish(userID.String(), StateFailed)
		submissionsTotal.WithLabelValues(outcomeFailed).Inc()
		o.notify(userID.String(), "Uh oh! Something went wrong.", "There was a problem saving your entry. Please try again.")
		return Result{}, err
	}
	o.finish(userID.String(), StateSucceeded)
	submissionsTotal.WithLabelValues(outcomeSucceeded).Inc()
	o.publishNotice(userID.String(), noticeLevelDefault, "Entry Saved", "Your journal entry has been saved.")
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, userID entries.UserID, submission Submission) (Result, error) {
	detected := o.classifier.Classify(submission.Text)

	previous, err := o.previousAffirmations(ctx, userID)
	if err != nil {
		o.logger.Error("history lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	affirmation, genErr := o.generate(ctx, affirmations.Request{
		Sentiment:            detected,
		EntryText:            submission.Text,
		PreviousAffirmations: previous,
	})
	degraded := genErr != nil
	if degraded {
		affirmationsDegradedTotal.Inc()
		o.logger.Warn("affirmation generation failed; saving entry without affirmation",
			zap.String("user_id", userID.String()),
			zap.String("sentiment", detected.String()),
			zap.Error(genErr))
		affirmation = ""
	}

	entry, err := retryWithData(ctx, o.writeRetry, func() (entries.Entry, error) {
		created, createErr := o.entries.Create(ctx, entries.NewEntry{
			UserID:      userID,
			Text:        submission.Text,
			Sentiment:   detected,
			Affirmation: affirmation,
		})
		if createErr != nil && isPermanentWriteError(createErr) {
			return entries.Entry{}, backoff.Permanent(createErr)
		}
		return created, createErr
	})
	if err != nil {
		o.logger.Error("entry persistence failed", zap.String("user_id", userID.String()), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	sessionKey := submission.SessionKey
	if sessionKey == "" {
		sessionKey = userID.String()
	}
	o.moods.Mount(sessionKey).Set(mood.Of(detected))

	o.logger.Info("entry created",
		zap.String("user_id", userID.String()),
		zap.String("entry_id", entry.EntryID),
		zap.String("sentiment", detected.String()),
		zap.Bool("affirmation_degraded", degraded))

	return Result{
		Entry:                entry,
		Location:             EntryLocation(entry.EntryID),
		AffirmationDegraded:  degraded,
		PreviousAffirmations: len(previous),
	}, nil
}

// previousAffirmations returns the non-empty affirmations of the most recent
// HistoryWindow entries, most recent first.
func (o *Orchestrator) previousAffirmations(ctx context.Context, userID entries.UserID) ([]string, error) {
	recent, err := o.entries.ListRecent(ctx, userID, HistoryWindow)
	if err != nil {
		return nil, err
	}
	if len(recent) > HistoryWindow {
		recent = recent[:HistoryWindow]
	}
	previous := make([]string, 0, len(recent))
	for _, entry := range recent {
		if strings.TrimSpace(entry.Affirmation) == "" {
			continue
		}
		previous = append(previous, entry.Affirmation)
	}
	return previous, nil
}

func (o *Orchestrator) generate(ctx context.Context, request affirmations.Request) (string, error) {
	return retryWithData(ctx, o.generationRetry, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
		defer cancel()
		started := time.Now()
		value, err := o.generator.Generate(callCtx, request)
		if err == nil && strings.TrimSpace(value) == "" {
			err = affirmations.ErrEmptyAffirmation
		}
		if err != nil {
			generationDuration.WithLabelValues(outcomeFailed).Observe(time.Since(started).Seconds())
			if errors.Is(err, affirmations.ErrGenerationUnavailable) || errors.Is(err, affirmations.ErrInvalidRequest) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		generationDuration.WithLabelValues(outcomeSucceeded).Observe(time.Since(started).Seconds())
		return strings.TrimSpace(value), nil
	})
}

// DeleteEntry issues an irrevocable deletion and returns without waiting for it.
// Failures surface only as a notice on the user's realtime stream.
func (o *Orchestrator) DeleteEntry(userID, entryID string, confirmed bool) error {
	if !confirmed {
		return ErrDeleteNotConfirmed
	}
	owner, err := entries.NewUserID(userID)
	if err != nil {
		return ErrUnauthenticated
	}
	target, err := entries.NewEntryID(entryID)
	if err != nil {
		return err
	}
	o.tasks.Go(Task{
		Name:  "delete_entry",
		Topic: owner.String(),
		Run: func(ctx context.Context) error {
			return o.entries.Delete(ctx, owner, target)
		},
		FailureNotice: realtime.Notice{
			Level:       noticeLevelDestructive,
			Title:       "Delete failed",
			Description: "Your entry could not be deleted. Please try again.",
		},
	})
	return nil
}

// WaitForTasks blocks until background work started by the orchestrator finishes.
func (o *Orchestrator) WaitForTasks(ctx context.Context) error {
	return o.tasks.Wait(ctx)
}

// EntryLocation is the client route of a single entry.
func EntryLocation(entryID string) string {
	return "/entries/" + entryID
}

func (o *Orchestrator) begin(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inFlight[userID]; running {
		return false
	}
	o.inFlight[userID] = struct{}{}
	return true
}

func (o *Orchestrator) finish(userID string, state State) {
	o.mu.Lock()
	delete(o.inFlight, userID)
	o.mu.Unlock()
	o.logger.Debug("submission finished", zap.String("user_id", userID), zap.String("state", string(state)))
}

func (o *Orchestrator) notify(topic, title, description string) {
	o.publishNotice(topic, noticeLevelDestructive, title, description)
}

func (o *Orchestrator) publishNotice(topic, level, title, description string) {
	if o.notifier == nil || strings.TrimSpace(topic) == "" {
		return
	}
	o.notifier.Publish(realtime.Message{
		Topic:     topic,
		EventType: realtime.EventNotice,
		Payload: realtime.Notice{
			Level:       level,
			Title:       title,
			Description: description,
		},
	})
}

func isPermanentWriteError(err error) bool {
	return errors.Is(err, entries.ErrTextTooShort) ||
		errors.Is(err, entries.ErrInvalidUserID) ||
		errors.Is(err, entries.ErrInvalidSentiment)
}
