package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"expense-api/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a record does not exist or is owned by
	// a different user. Callers cannot tell the two cases apart.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

const (
	// DefaultListLimit is the page size used when none is requested.
	DefaultListLimit = 50
	// MaxListLimit caps the requested page size.
	MaxListLimit = 100
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			amount_cents INTEGER NOT NULL,
			category TEXT NOT NULL,
			date DATETIME NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, date)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser creates a new user with the given username and password hash.
// Returns ErrDuplicate when the username is taken.
func (db *DB) CreateUser(username, passwordHash string) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// ExpenseFields holds the writable fields of an expense.
type ExpenseFields struct {
	AmountCents int64
	Category    string
	Date        time.Time
	Description string
}

// ExpenseUpdate describes a partial update. Nil fields are left unchanged.
type ExpenseUpdate struct {
	AmountCents *int64
	Category    *string
	Date        *time.Time
	Description *string
}

// ExpenseFilter narrows and pages an expense listing.
type ExpenseFilter struct {
	Category string
	From     *time.Time
	To       *time.Time
	MinCents *int64
	MaxCents *int64
	Limit    int
	Offset   int
}

// where builds the WHERE clause for the filter, always scoped to userID.
func (f ExpenseFilter) where(userID int64) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}

	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.To.UTC())
	}
	if f.MinCents != nil {
		clauses = append(clauses, "amount_cents >= ?")
		args = append(args, *f.MinCents)
	}
	if f.MaxCents != nil {
		clauses = append(clauses, "amount_cents <= ?")
		args = append(args, *f.MaxCents)
	}

	return strings.Join(clauses, " AND "), args
}

const expenseColumns = "id, user_id, amount_cents, category, date, description, created_at, updated_at"

func scanExpense(row *sql.Row) (*models.Expense, error) {
	var e models.Expense
	if err := row.Scan(&e.ID, &e.UserID, &e.AmountCents, &e.Category, &e.Date, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// CreateExpense inserts a new expense owned by userID.
func (db *DB) CreateExpense(userID int64, f ExpenseFields) (*models.Expense, error) {
	now := time.Now().UTC()
	result, err := db.conn.Exec(
		"INSERT INTO expenses (user_id, amount_cents, category, date, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		userID, f.AmountCents, f.Category, f.Date.UTC(), f.Description, now, now,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetExpense(userID, id)
}

// GetExpense retrieves a single expense by ID, scoped to its owner. An
// expense owned by another user is reported as ErrNotFound.
func (db *DB) GetExpense(userID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRow(
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	return scanExpense(row)
}

// ListExpenses retrieves the expenses owned by userID that match the
// filter, ordered by date descending with ID as tiebreak.
func (db *DB) ListExpenses(userID int64, filter ExpenseFilter) ([]models.Expense, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := filter.where(userID)
	args = append(args, limit, offset)

	rows, err := db.conn.Query(
		"SELECT "+expenseColumns+" FROM expenses WHERE "+where+" ORDER BY date DESC, id DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.AmountCents, &e.Category, &e.Date, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// UpdateExpense applies a partial update to an expense owned by userID.
// The owner reference never changes. Returns the updated record.
func (db *DB) UpdateExpense(userID, id int64, upd ExpenseUpdate) (*models.Expense, error) {
	e, err := db.GetExpense(userID, id)
	if err != nil {
		return nil, err
	}

	if upd.AmountCents != nil {
		e.AmountCents = *upd.AmountCents
	}
	if upd.Category != nil {
		e.Category = *upd.Category
	}
	if upd.Date != nil {
		e.Date = upd.Date.UTC()
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}

	_, err = db.conn.Exec(
		"UPDATE expenses SET amount_cents = ?, category = ?, date = ?, description = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		e.AmountCents, e.Category, e.Date, e.Description, time.Now().UTC(), id, userID,
	)
	if err != nil {
		return nil, err
	}

	return db.GetExpense(userID, id)
}

// DeleteExpense removes an expense owned by userID. Hard delete.
func (db *DB) DeleteExpense(userID, id int64) error {
	result, err := db.conn.Exec(
		"DELETE FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CategoryTotal is the aggregate spend for one category.
type CategoryTotal struct {
	Category   string `json:"category"`
	TotalCents int64  `json:"total_cents"`
	Count      int64  `json:"count"`
}

// SummarizeExpenses returns per-category totals for the expenses owned by
// userID that match the filter. Pagination fields are ignored.
func (db *DB) SummarizeExpenses(userID int64, filter ExpenseFilter) ([]CategoryTotal, error) {
	where, args := filter.where(userID)

	rows, err := db.conn.Query(
		"SELECT category, SUM(amount_cents), COUNT(*) FROM expenses WHERE "+where+" GROUP BY category ORDER BY SUM(amount_cents) DESC",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []CategoryTotal{}
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.TotalCents, &t.Count); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}
