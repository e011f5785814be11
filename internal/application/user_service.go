package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/usersvc/users-api/internal/domain/entity"
	"github.com/usersvc/users-api/internal/domain/repository"
	"github.com/usersvc/users-api/pkg/helpers"
	"github.com/usersvc/users-api/pkg/mailer"
	"github.com/usersvc/users-api/pkg/validation"
)

var (
	ErrUserNotFound = errors.New("User not found")
	ErrEmailExists  = errors.New("Email already exists")
	// ErrDatabase wraps persistence failures so handlers can report them
	// separately from other unexpected errors.
	ErrDatabase = errors.New("Database error")
)

// DuplicateEmailError is returned by Update when the requested email belongs
// to a different user; it carries the conflicting address for the response.
type DuplicateEmailError struct {
	Email string
}

func (e *DuplicateEmailError) Error() string {
	return fmt.Sprintf("Email %s already exists", e.Email)
}

// AvatarStorage is the object-storage contract the service needs for avatars.
type AvatarStorage interface {
	Upload(ctx context.Context, userID int64, filename, contentType string, r io.Reader) (url, key string, err error)
	Delete(ctx context.Context, key string) error
}

// AvatarInput is an uploaded avatar attachment. A nil *AvatarInput means no
// attachment was supplied.
type AvatarInput struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

type CreateInput struct {
	Name   string
	Email  string
	Avatar *AvatarInput
}

// UpdateInput applies a partial update: nil fields are left unchanged.
type UpdateInput struct {
	Name   *string
	Email  *string
	Avatar *AvatarInput
}

// Service orchestrates validation, persistence and the avatar side effect for
// user records. Redis, Elasticsearch and the mail publisher are optional;
// their side effects run best-effort after commit and never fail a request.
type Service struct {
	Store        repository.Store
	Avatars      AvatarStorage
	Redis        *redis.Client
	CacheTTL     time.Duration
	Logger       *logrus.Logger
	ES           *elasticsearch.Client
	ESUsersIndex string
	Mail         *helpers.RabbitPublisher
	AppName      string
}

func NewService(store repository.Store, avatars AvatarStorage, logger *logrus.Logger) *Service {
	return &Service{Store: store, Avatars: avatars, Logger: logger, CacheTTL: 10 * time.Minute}
}

func dbErr(err error) error {
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

// Create validates the input, enforces email uniqueness and persists the new
// user. When an avatar attachment is present it is uploaded before commit; an
// upload failure aborts the whole create.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.User, error) {
	name, err := validation.Name(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := validation.Email(in.Email)
	if err != nil {
		return nil, err
	}

	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	if _, err := uow.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, dbErr(err)
	}

	u := &entity.User{Name: name, Email: email}
	if err := uow.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailExists
		}
		return nil, dbErr(err)
	}

	if in.Avatar != nil {
		if s.Avatars == nil {
			return nil, errors.New("avatar storage not configured")
		}
		url, key, err := s.Avatars.Upload(ctx, u.ID, in.Avatar.Filename, in.Avatar.ContentType, in.Avatar.Reader)
		if err != nil {
			return nil, err
		}
		u.AvatarURL = url
		u.AvatarKey = key
		if err := uow.UpdateUser(ctx, u); err != nil {
			return nil, dbErr(err)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailExists
		}
		return nil, dbErr(err)
	}

	s.cacheUser(ctx, u)
	s.indexUser(ctx, u)
	s.publishWelcome(ctx, u)
	return u, nil
}

// List returns all users in store order.
func (s *Service) List(ctx context.Context) ([]entity.User, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	users, err := uow.ListUsers(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	return users, nil
}

// Get returns a single user by id, reading through the Redis cache when one
// is configured.
func (s *Service) Get(ctx context.Context, id int64) (*entity.User, error) {
	if s.Redis != nil {
		var cached entity.User
		if ok, err := helpers.RedisGetJSON(ctx, s.Redis, userCacheKey(id), &cached); err == nil && ok {
			return &cached, nil
		}
	}

	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	u, err := uow.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, dbErr(err)
	}

	s.cacheUser(ctx, u)
	return u, nil
}

// Update applies a partial update to the user. Supplied fields are validated;
// an email change is checked for uniqueness against other users. A new avatar
// replaces the old object, deleting it best-effort by its persisted key.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*entity.User, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	u, err := uow.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, dbErr(err)
	}

	if in.Name != nil {
		name, err := validation.Name(*in.Name)
		if err != nil {
			return nil, err
		}
		u.Name = name
	}

	if in.Email != nil {
		email, err := validation.Email(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			taken, err := uow.EmailTakenByOther(ctx, email, id)
			if err != nil {
				return nil, dbErr(err)
			}
			if taken {
				return nil, &DuplicateEmailError{Email: email}
			}
		}
		u.Email = email
	}

	if in.Avatar != nil {
		if s.Avatars == nil {
			return nil, errors.New("avatar storage not configured")
		}
		if u.AvatarKey != "" {
			if err := s.Avatars.Delete(ctx, u.AvatarKey); err != nil {
				s.warn("old avatar delete failed", err, logrus.Fields{"user_id": u.ID, "key": u.AvatarKey})
			}
		}
		url, key, err := s.Avatars.Upload(ctx, u.ID, in.Avatar.Filename, in.Avatar.ContentType, in.Avatar.Reader)
		if err != nil {
			return nil, err
		}
		u.AvatarURL = url
		u.AvatarKey = key
	}

	if err := uow.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &DuplicateEmailError{Email: u.Email}
		}
		return nil, dbErr(err)
	}

	if err := uow.Commit(ctx); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &DuplicateEmailError{Email: u.Email}
		}
		return nil, dbErr(err)
	}

	s.cacheUser(ctx, u)
	s.indexUser(ctx, u)
	return u, nil
}

// Delete removes the user. The avatar object, cache entry and search document
// are cleaned up best-effort after commit.
func (s *Service) Delete(ctx context.Context, id int64) error {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return dbErr(err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	u, err := uow.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return dbErr(err)
	}

	if err := uow.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return dbErr(err)
	}

	if err := uow.Commit(ctx); err != nil {
		return dbErr(err)
	}

	if u.AvatarKey != "" && s.Avatars != nil {
		if err := s.Avatars.Delete(ctx, u.AvatarKey); err != nil {
			s.warn("avatar delete failed", err, logrus.Fields{"user_id": id, "key": u.AvatarKey})
		}
	}
	if s.Redis != nil {
		if err := helpers.RedisDel(ctx, s.Redis, userCacheKey(id)); err != nil {
			s.warn("cache invalidate failed", err, logrus.Fields{"user_id": id})
		}
	}
	s.deleteIndexed(ctx, id)
	return nil
}

func userCacheKey(id int64) string {
	return "user:record:" + strconv.FormatInt(id, 10)
}

func (s *Service) cacheUser(ctx context.Context, u *entity.User) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, userCacheKey(u.ID), u, s.CacheTTL); err != nil {
		s.warn("cache set failed", err, logrus.Fields{"user_id": u.ID})
	}
}

func (s *Service) indexUser(ctx context.Context, u *entity.User) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	doc := map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"avatar":     u.AvatarURL,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{
		Index:      s.ESUsersIndex,
		DocumentID: strconv.FormatInt(u.ID, 10),
		Body:       strings.NewReader(string(b)),
		Refresh:    "false",
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		s.warn("es index failed", err, logrus.Fields{"user_id": u.ID})
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		s.warn("es index response error", nil, logrus.Fields{"status": res.Status(), "user_id": u.ID})
	}
}

func (s *Service) deleteIndexed(ctx context.Context, id int64) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	req := esapi.DeleteRequest{Index: s.ESUsersIndex, DocumentID: strconv.FormatInt(id, 10)}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		s.warn("es delete failed", err, logrus.Fields{"user_id": id})
		return
	}
	_ = res.Body.Close()
}

func (s *Service) publishWelcome(ctx context.Context, u *entity.User) {
	if s.Mail == nil {
		return
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: "welcome",
		Data: map[string]any{
			"Name":    u.Name,
			"Email":   u.Email,
			"AppName": s.AppName,
		},
	}
	if err := s.Mail.PublishJSON(ctx, job); err != nil {
		s.warn("welcome email publish failed", err, logrus.Fields{"user_id": u.ID})
	}
}

// Search runs a multi_match query over name and email in Elasticsearch.
func (s *Service) Search(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "name"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *Service) warn(msg string, err error, fields logrus.Fields) {
	if s.Logger == nil {
		return
	}
	e := s.Logger.WithFields(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Warn(msg)
}
