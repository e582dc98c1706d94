package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/services"
)

type stubUserService struct {
	searchResult []models.PublicUser
	searchTotal  int
	contacts     []models.PublicUser
	users        map[string]models.User
	lastQuery    string
	lastPage     int
	lastLimit    int
}

func (s *stubUserService) Get(_ context.Context, userID string) (*models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &user, nil
}

func (s *stubUserService) Search(_ context.Context, _ string, query string, page, limit int) ([]models.PublicUser, int, error) {
	s.lastQuery = query
	s.lastPage = page
	s.lastLimit = limit
	return s.searchResult, s.searchTotal, nil
}

func (s *stubUserService) Contacts(_ context.Context, _ string) ([]models.PublicUser, error) {
	return s.contacts, nil
}

func TestSearchUsersReturnsPagination(t *testing.T) {
	service := &stubUserService{
		searchResult: []models.PublicUser{{ID: "u-2", Username: "bobby"}},
		searchTotal:  12,
	}
	handler := NewUserHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "u-1")
		return c.Next()
	})
	app.Get("/api/v1/users", handler.SearchUsers)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users?q=bob&page=2&limit=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastQuery != "bob" || service.lastPage != 2 || service.lastLimit != maxPageLimit {
		t.Fatalf("unexpected forwarded search: %q page=%d limit=%d", service.lastQuery, service.lastPage, service.lastLimit)
	}

	var body struct {
		Users      []models.PublicUser   `json:"users"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Users) != 1 || body.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected response body: %+v %+v", body.Users, body.Pagination)
	}
}

func TestListContacts(t *testing.T) {
	service := &stubUserService{contacts: []models.PublicUser{{ID: "u-3", Username: "carol", IsOnline: true}}}
	handler := NewUserHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "u-1")
		return c.Next()
	})
	app.Get("/api/v1/contacts", handler.ListContacts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Contacts []models.PublicUser `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Contacts) != 1 || !body.Contacts[0].IsOnline {
		t.Fatalf("unexpected contacts: %+v", body.Contacts)
	}
}

func TestGetUserHidesPrivateFields(t *testing.T) {
	service := &stubUserService{users: map[string]models.User{
		"u-9": {ID: "u-9", Username: "zed", Email: "zed@example.com", PasswordHash: "hash", IsOnline: true},
	}}
	handler := NewUserHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "u-1")
		return c.Next()
	})
	app.Get("/api/v1/users/:id", handler.GetUser)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u-9", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := body["user"]["email"]; ok {
		t.Fatalf("email must not be exposed: %+v", body["user"])
	}
	if body["user"]["is_online"] != true {
		t.Fatalf("expected online flag, got %+v", body["user"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/missing", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
