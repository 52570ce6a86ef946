package entries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation.reason code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "entries.service.new"
	opCreate      = "entries.create"
	opListRecent  = "entries.list_recent"
	opGet         = "entries.get"
	opDelete      = "entries.delete"
	fieldUserID   = "user_id"
	fieldEntryID  = "entry_id"
	queryUser     = fieldUserID + " = ?"
	queryUserItem = fieldUserID + " = ? AND " + fieldEntryID + " = ?"
	orderRecency  = "created_at_ms DESC, entry_id DESC"

	reasonMissingDatabase   = "missing_database"
	reasonMissingIDProvider = "missing_id_provider"
	reasonInvalidInput      = "invalid_input"
	reasonIDGeneration      = "id_generation_failed"
	reasonInsertFailed      = "insert_failed"
	reasonQueryFailed       = "query_failed"
	reasonNotFound          = "not_found"
	reasonDeleteFailed      = "delete_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the entry store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues opaque entry identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service is the per-user entry store. It supports insert, list by recency,
// fetch by id and delete; there is no update path.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create inserts a new entry and returns it with the assigned id and timestamp.
// Timestamps strictly increase per user so listing order matches insertion order.
func (s *Service) Create(ctx context.Context, input NewEntry) (Entry, error) {
	if s.db == nil {
		s.logError(opCreate, reasonMissingDatabase, errMissingDatabase)
		return Entry{}, newServiceError(opCreate, reasonMissingDatabase, errMissingDatabase)
	}
	if err := input.validate(); err != nil {
		return Entry{}, newServiceError(opCreate, reasonInvalidInput, err)
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, reasonIDGeneration, err, zap.String(fieldUserID, input.UserID.String()))
		return Entry{}, newServiceError(opCreate, reasonIDGeneration, err)
	}

	entry := Entry{
		UserID:      input.UserID.String(),
		EntryID:     entryID,
		Text:        input.Text,
		Sentiment:   input.Sentiment.String(),
		Affirmation: input.Affirmation,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int64
		if err := tx.Model(&Entry{}).
			Where(queryUser, entry.UserID).
			Select("COALESCE(MAX(created_at_ms), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}
		createdAt := s.clock().UTC().UnixMilli()
		if createdAt <= latest {
			createdAt = latest + 1
		}
		entry.CreatedAtMs = createdAt
		return tx.Create(&entry).Error
	})
	if txErr != nil {
		s.logError(opCreate, reasonInsertFailed, txErr, zap.String(fieldUserID, entry.UserID))
		return Entry{}, newServiceError(opCreate, reasonInsertFailed, txErr)
	}

	return entry, nil
}

// ListRecent returns the user's entries newest first. A non-positive limit returns all entries.
func (s *Service) ListRecent(ctx context.Context, userID UserID, limit int) ([]Entry, error) {
	if s.db == nil {
		s.logError(opListRecent, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListRecent, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewUserID(userID.String()); err != nil {
		return nil, newServiceError(opListRecent, reasonInvalidInput, err)
	}

	query := s.db.WithContext(ctx).
		Where(queryUser, userID.String()).
		Order(orderRecency)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		s.logError(opListRecent, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
		return nil, newServiceError(opListRecent, reasonQueryFailed, err)
	}
	return entries, nil
}

// Get returns a single entry owned by the user.
func (s *Service) Get(ctx context.Context, userID UserID, entryID EntryID) (Entry, error) {
	if s.db == nil {
		s.logError(opGet, reasonMissingDatabase, errMissingDatabase)
		return Entry{}, newServiceError(opGet, reasonMissingDatabase, errMissingDatabase)
	}

	var entry Entry
	err := s.db.WithContext(ctx).
		Where(queryUserItem, userID.String(), entryID.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, newServiceError(opGet, reasonNotFound, ErrEntryNotFound)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, entryID.String()))
		return Entry{}, newServiceError(opGet, reasonQueryFailed, err)
	}
	return entry, nil
}

// Delete removes the entry permanently. Deleting an absent entry is not an error.
func (s *Service) Delete(ctx context.Context, userID UserID, entryID EntryID) error {
	if s.db == nil {
		s.logError(opDelete, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDelete, reasonMissingDatabase, errMissingDatabase)
	}

	result := s.db.WithContext(ctx).
		Where(queryUserItem, userID.String(), entryID.String()).
		Delete(&Entry{})
	if result.Error != nil {
		s.logError(opDelete, reasonDeleteFailed, result.Error,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, entryID.String()))
		return newServiceError(opDelete, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		s.loggerOrDefault().Debug("entry already absent",
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, entryID.String()))
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("entries service error", attrs...)
}
