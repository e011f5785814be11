package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	userapp "github.com/usersvc/users-api/internal/application"
	"github.com/usersvc/users-api/internal/domain/entity"
	"github.com/usersvc/users-api/internal/domain/repository"
	handlers "github.com/usersvc/users-api/internal/interface/http"
	"github.com/usersvc/users-api/internal/router/modules"
	"github.com/usersvc/users-api/pkg/validation"
)

// stubStore is a minimal in-memory Store for exercising the HTTP contract.
type stubStore struct {
	users    map[int64]entity.User
	nextID   int64
	beginErr error
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[int64]entity.User)}
}

func (s *stubStore) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &stubUOW{s: s}, nil
}

type stubUOW struct{ s *stubStore }

func (w *stubUOW) Commit(ctx context.Context) error   { return nil }
func (w *stubUOW) Rollback(ctx context.Context) error { return nil }

func (w *stubUOW) CreateUser(ctx context.Context, u *entity.User) error {
	for _, existing := range w.s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	w.s.nextID++
	u.ID = w.s.nextID
	u.CreatedAt = time.Now().UTC()
	w.s.users[u.ID] = *u
	return nil
}

func (w *stubUOW) ListUsers(ctx context.Context) ([]entity.User, error) {
	out := make([]entity.User, 0, len(w.s.users))
	for id := int64(1); id <= w.s.nextID; id++ {
		if u, ok := w.s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (w *stubUOW) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	u, ok := w.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (w *stubUOW) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	for _, u := range w.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (w *stubUOW) EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error) {
	for _, u := range w.s.users {
		if u.Email == email && u.ID != id {
			return true, nil
		}
	}
	return false, nil
}

func (w *stubUOW) UpdateUser(ctx context.Context, u *entity.User) error {
	if _, ok := w.s.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	w.s.users[u.ID] = *u
	return nil
}

func (w *stubUOW) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := w.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(w.s.users, id)
	return nil
}

var _ repository.Store = (*stubStore)(nil)

type stubAvatars struct{}

func (stubAvatars) Upload(ctx context.Context, userID int64, filename, contentType string, r io.Reader) (string, string, error) {
	_, _ = io.Copy(io.Discard, r)
	key := fmt.Sprintf("avatars/%d/%s", userID, filename)
	return "https://storage.googleapis.com/test-bucket/" + key, key, nil
}

func (stubAvatars) Delete(ctx context.Context, key string) error { return nil }

func setupRouter(store repository.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validation.Init()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := userapp.NewService(store, stubAvatars{}, logger)
	h := handlers.NewUserHandler(svc, logger)

	r := gin.New()
	modules.NewUserModule(h).Register(r.Group("/"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestCreateUser_JSON(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "John Doe", "email": "john@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, "John Doe", body["name"])
	assert.Equal(t, "john@example.com", body["email"])
	assert.Nil(t, body["avatar"])

	_, err := time.Parse(time.RFC3339, body["created_at"].(string))
	assert.NoError(t, err)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "First User", "email": "duplicate@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "Second User", "email": "duplicate@example.com"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "Email already exists", decodeBody(t, resp)["detail"])

	list := doJSON(t, r, http.MethodGet, "/users/", nil)
	var users []map[string]any
	assert.NoError(t, json.Unmarshal(list.Body.Bytes(), &users))
	assert.Len(t, users, 1)
}

func TestCreateUser_ValidationErrors(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "a", "email": "short@example.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "Name must be at least 2 characters long", decodeBody(t, resp)["detail"])

	resp = doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "ann3", "email": "digits@example.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "Name cannot contain numbers", decodeBody(t, resp)["detail"])

	resp = doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "Valid Name", "email": "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "Email is not a valid address", decodeBody(t, resp)["detail"])

	// Request-shape failure: missing fields are reported by the binding layer.
	resp = doJSON(t, r, http.MethodPost, "/users/", gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, decodeBody(t, resp)["detail"], "required")
}

func TestCreateUser_MultipartWithAvatar(t *testing.T) {
	r := setupRouter(newStubStore())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	assert.NoError(t, mw.WriteField("name", "Avatar User"))
	assert.NoError(t, mw.WriteField("email", "avatar@example.com"))
	fw, err := mw.CreateFormFile("avatar", "avatar.jpg")
	assert.NoError(t, err)
	_, err = fw.Write([]byte("fake image data"))
	assert.NoError(t, err)
	assert.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, "/users/", &buf)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "Avatar User", body["name"])
	avatar, ok := body["avatar"].(string)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(avatar, "https://"))
}

func TestCreateUser_MultipartWithoutAvatar(t *testing.T) {
	r := setupRouter(newStubStore())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	assert.NoError(t, mw.WriteField("name", "Plain User"))
	assert.NoError(t, mw.WriteField("email", "plain@example.com"))
	assert.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, "/users/", &buf)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Nil(t, decodeBody(t, resp)["avatar"])
}

func TestGetUser_NotFound(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodGet, "/users/99", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "User not found", decodeBody(t, resp)["detail"])

	resp = doJSON(t, r, http.MethodGet, "/users/abc", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUpdateUser_PartialName(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "John Doe", "email": "john@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = doJSON(t, r, http.MethodPut, "/users/1", gin.H{"name": "John D."})
	assert.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "John D.", body["name"])
	assert.Equal(t, "john@example.com", body["email"])
}

func TestUpdateUser_EmailConflict(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "Alice", "email": "alice@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)
	resp = doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "Bob", "email": "bob@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = doJSON(t, r, http.MethodPut, "/users/2", gin.H{"email": "alice@example.com"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "Email alice@example.com already exists", decodeBody(t, resp)["detail"])

	// Target record not mutated.
	resp = doJSON(t, r, http.MethodGet, "/users/2", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "bob@example.com", decodeBody(t, resp)["email"])
}

func TestUpdateUser_NotFound(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPut, "/users/42", gin.H{"name": "Nobody"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "User not found", decodeBody(t, resp)["detail"])
}

func TestDeleteUser_Lifecycle(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "John Doe", "email": "john@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = doJSON(t, r, http.MethodDelete, "/users/1", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, resp.Body.String())

	resp = doJSON(t, r, http.MethodGet, "/users/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodDelete, "/users/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListUsers(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodGet, "/users/", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "[]", strings.TrimSpace(resp.Body.String()))

	doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "Alice", "email": "alice@example.com"})
	doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "Bob", "email": "bob@example.com"})

	resp = doJSON(t, r, http.MethodGet, "/users/", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	var users []map[string]any
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &users))
	assert.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0]["email"])
}

func TestDatabaseError(t *testing.T) {
	store := newStubStore()
	store.beginErr = errors.New("connection refused")
	r := setupRouter(store)

	resp := doJSON(t, r, http.MethodGet, "/users/", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "Database error", decodeBody(t, resp)["detail"])
}

func TestUserLifecycle_EndToEnd(t *testing.T) {
	r := setupRouter(newStubStore())

	resp := doJSON(t, r, http.MethodPost, "/users/", gin.H{"name": "John Doe", "email": "john@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBody(t, resp)
	assert.Equal(t, float64(1), created["id"])

	resp = doJSON(t, r, http.MethodGet, "/users/1", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, created["email"], decodeBody(t, resp)["email"])

	resp = doJSON(t, r, http.MethodPut, "/users/1", gin.H{"name": "John D.", "email": "john@example.com"})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "John D.", decodeBody(t, resp)["name"])

	resp = doJSON(t, r, http.MethodDelete, "/users/1", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/users/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
