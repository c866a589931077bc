package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
)

// testDB connects to the database named by TEST_DATABASE_URL and
// applies the schema. Tests are skipped when the variable is unset so
// the suite runs without Postgres.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return db
}

// testUser inserts a throwaway user and removes it, cascading its
// conversations and tokens, when the test ends.
func testUser(t *testing.T, db *sql.DB) *model.User {
	t.Helper()

	users := NewUserStore(db)
	email := fmt.Sprintf("test-%s@example.com", uuid.New())
	user, err := users.CreateUser(context.Background(), email, "Test User", "not-a-real-hash")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func TestUserStoreDuplicateEmail(t *testing.T) {
	db := testDB(t)
	users := NewUserStore(db)
	user := testUser(t, db)

	_, err := users.CreateUser(context.Background(), user.Email, "Impostor", "hash")
	if !errors.Is(err, model.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestUserStoreLookup(t *testing.T) {
	db := testDB(t)
	users := NewUserStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	byEmail, err := users.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("lookup by email failed: %v", err)
	}
	if byEmail.ID != user.ID || byEmail.PasswordHash != "not-a-real-hash" {
		t.Errorf("lookup returned wrong user: %+v", byEmail)
	}

	byID, err := users.GetUserByID(ctx, user.ID)
	if err != nil || byID.Email != user.Email {
		t.Errorf("lookup by id: %+v, %v", byID, err)
	}

	if _, err := users.GetUserByID(ctx, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := users.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown email: expected ErrNotFound, got %v", err)
	}
}

func TestResetTokenConsume(t *testing.T) {
	db := testDB(t)
	users := NewUserStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	token, err := users.CreateResetToken(ctx, user.ID, "tok-"+uuid.NewString(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create token: %v", err)
	}

	if err := users.ConsumeResetToken(ctx, token.Token, "new-hash"); err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	updated, err := users.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.PasswordHash != "new-hash" {
		t.Errorf("password hash not updated: %q", updated.PasswordHash)
	}

	// Consumed tokens are gone.
	if err := users.ConsumeResetToken(ctx, token.Token, "again"); !errors.Is(err, model.ErrInvalidToken) {
		t.Errorf("second consume: expected ErrInvalidToken, got %v", err)
	}
}

func TestResetTokenExpiredConsume(t *testing.T) {
	db := testDB(t)
	users := NewUserStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	token, err := users.CreateResetToken(ctx, user.ID, "tok-"+uuid.NewString(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("failed to create token: %v", err)
	}

	if err := users.ConsumeResetToken(ctx, token.Token, "new-hash"); !errors.Is(err, model.ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	db := testDB(t)
	conversations := NewConversationStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	conv, err := conversations.Create(ctx, user.ID, model.DefaultTitle)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	// Alternate a short dialog and check the transcript comes back in
	// order with roles and content intact.
	turns := []struct {
		role    model.Role
		content string
	}{
		{model.RoleUser, "How do I read a file in Go?"},
		{model.RoleAssistant, "Use os.ReadFile for small files."},
		{model.RoleUser, "And line by line?"},
		{model.RoleAssistant, "Wrap the file in a bufio.Scanner."},
	}
	for _, turn := range turns {
		if _, err := conversations.AppendMessage(ctx, conv.ID, turn.role, turn.content); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := conversations.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != len(turns) {
		t.Fatalf("got %d messages, want %d", len(got), len(turns))
	}
	for i, turn := range turns {
		if got[i].Role != turn.role || got[i].Content != turn.content {
			t.Errorf("message %d = %s %q, want %s %q", i, got[i].Role, got[i].Content, turn.role, turn.content)
		}
	}
}

func TestConversationListOrder(t *testing.T) {
	db := testDB(t)
	conversations := NewConversationStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	first, err := conversations.Create(ctx, user.ID, "first")
	if err != nil {
		t.Fatal(err)
	}
	// created_at has microsecond resolution; make the ordering
	// unambiguous.
	time.Sleep(10 * time.Millisecond)
	second, err := conversations.Create(ctx, user.ID, "second")
	if err != nil {
		t.Fatal(err)
	}

	list, err := conversations.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("conversations not most-recent-first: %+v", list)
	}
}

func TestAppendMessageInvalidRole(t *testing.T) {
	db := testDB(t)
	conversations := NewConversationStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	conv, err := conversations.Create(ctx, user.ID, model.DefaultTitle)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := conversations.AppendMessage(ctx, conv.ID, model.Role("system"), "nope"); !errors.Is(err, model.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestDeleteCascadesMessages(t *testing.T) {
	db := testDB(t)
	conversations := NewConversationStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	conv, err := conversations.Create(ctx, user.ID, model.DefaultTitle)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := conversations.AppendMessage(ctx, conv.ID, model.RoleUser, "doomed")
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := conversations.Delete(ctx, conv.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: %v, %v", deleted, err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE id = $1`, msg.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("messages survived conversation delete")
	}

	// Deleting again reports nothing removed.
	deleted, err = conversations.Delete(ctx, conv.ID)
	if err != nil || deleted {
		t.Errorf("second delete: %v, %v", deleted, err)
	}
}

func TestUpdateTitle(t *testing.T) {
	db := testDB(t)
	conversations := NewConversationStore(db)
	user := testUser(t, db)
	ctx := context.Background()

	conv, err := conversations.Create(ctx, user.ID, model.DefaultTitle)
	if err != nil {
		t.Fatal(err)
	}

	if err := conversations.UpdateTitle(ctx, conv.ID, "Reading files in Go"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	list, err := conversations.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "Reading files in Go" {
		t.Errorf("title not persisted: %+v", list)
	}
	if !list[0].UpdatedAt.After(conv.UpdatedAt) {
		t.Error("updated_at not bumped")
	}
}
