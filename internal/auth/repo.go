package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/platform/db"
	"github.com/hearth-cms/hearth/internal/platform/httpx"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	NicknameExists(ctx context.Context, key string) (bool, error)
	Create(ctx context.Context, user *User) error
	SetRole(ctx context.Context, email string, role access.Role) error
	Nicknames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const userColumns = `id, email, password_hash, name, COALESCE(phone, ''), COALESCE(nickname, ''), role, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Nickname, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.Role = access.ParseRole(role)
	return &u, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// EmailExists reports whether email is registered.
func (r *PGRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

// NicknameExists reports whether a nickname with the normalized key is taken.
func (r *PGRepository) NicknameExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE nickname_key = $1)`, key).Scan(&exists)
	return exists, err
}

// Create inserts user and fills in the generated id and timestamps. Unique
// violations surface as httpx.ErrDuplicate naming the clashing field.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	var nickname, nicknameKey, phone *string
	if user.Nickname != "" {
		key := NicknameKey(user.Nickname)
		nickname, nicknameKey = &user.Nickname, &key
	}
	if user.Phone != "" {
		phone = &user.Phone
	}
	err := r.db.QueryRow(ctx, `INSERT INTO users (email, password_hash, name, phone, nickname, nickname_key, role)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at`,
		user.Email, user.PasswordHash, user.Name, phone, nickname, nicknameKey, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "nickname") {
			return httpx.TranslateDuplicate(err, "nickname")
		}
		return httpx.TranslateDuplicate(err, "email")
	}
	return nil
}

// SetRole changes the role of the user with email.
func (r *PGRepository) SetRole(ctx context.Context, email string, role access.Role) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE email = $1`, email, string(role))
	if err != nil {
		return fmt.Errorf("auth: set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Nicknames returns display names for author ids, falling back to name when
// no nickname is set.
func (r *PGRepository) Nicknames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, COALESCE(NULLIF(nickname, ''), name) FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("auth: nicknames: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*User
	now    func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]*User), now: time.Now}
}

// FindByEmail fetches a user by email.
func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

// FindByID fetches a user by id.
func (m *MemoryRepository) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

// EmailExists reports whether email is registered.
func (m *MemoryRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

// NicknameExists reports whether a nickname with the normalized key is taken.
func (m *MemoryRepository) NicknameExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nicknameTaken(key), nil
}

func (m *MemoryRepository) nicknameTaken(key string) bool {
	for _, u := range m.users {
		if u.Nickname != "" && NicknameKey(u.Nickname) == key {
			return true
		}
	}
	return false
}

// Create stores user, enforcing email and nickname uniqueness.
func (m *MemoryRepository) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: email", httpx.ErrDuplicate)
		}
	}
	if user.Nickname != "" && m.nicknameTaken(NicknameKey(user.Nickname)) {
		return fmt.Errorf("%w: nickname", httpx.ErrDuplicate)
	}
	m.nextID++
	now := m.now()
	user.ID = m.nextID
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Role == "" {
		user.Role = access.RoleUser
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

// SetRole changes the role of the user with email.
func (m *MemoryRepository) SetRole(_ context.Context, email string, role access.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.Role = role
			u.UpdatedAt = m.now()
			return nil
		}
	}
	return ErrUserNotFound
}

// Nicknames returns display names for author ids.
func (m *MemoryRepository) Nicknames(_ context.Context, ids []int64) (map[int64]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			if u.Nickname != "" {
				out[id] = u.Nickname
			} else {
				out[id] = u.Name
			}
		}
	}
	return out, nil
}

// Users lists stored users ordered by id.
func (m *MemoryRepository) Users() []User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ Repository = (*MemoryRepository)(nil)
