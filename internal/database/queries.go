package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	insertFriendQuery = "INSERT INTO friendships (user_id, friend_id, created_at) VALUES ($1, $2, $3)"
	userColumns       = "id, username, contact_info, created_at"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (db *PgIdentityRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (id, username, contact_info, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, contact_info, created_at",
		uuid.NewString(),
		params.Username,
		params.ContactInfo,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.ContactInfo,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgIdentityRepository) GetUser(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, contact_info, created_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.ContactInfo,
		&u.CreatedAt,
	)

	return u, err
}

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.Id, &u.Username, &u.ContactInfo, &u.CreatedAt)
	return u, err
}

func (db *PgIdentityRepository) GetUserByContact(ctx context.Context, contact string) (User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE contact_info = $1 ORDER BY created_at, id LIMIT 1",
		contact,
	))
}

func (db *PgIdentityRepository) SearchUsers(ctx context.Context, params SearchUsersParams) ([]User, error) {
	pattern := "%" + likeEscaper.Replace(params.Query) + "%"
	limit := sql.NullInt64{Int64: int64(params.Limit), Valid: params.Limit > 0}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users "+
			"WHERE id <> $1 AND (username ILIKE $2 OR contact_info LIKE $2) "+
			"ORDER BY username, id LIMIT $3",
		params.ExcludeId,
		pattern,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// AddFriend stores the friendship in both directions.
func (db *PgIdentityRepository) AddFriend(ctx context.Context, userId, friendId string) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, insertFriendQuery, userId, friendId, now); err != nil {
		return mapPgError(err)
	}
	if _, err = tx.ExecContext(ctx, insertFriendQuery, friendId, userId, now); err != nil {
		return mapPgError(err)
	}

	return tx.Commit()
}

func (db *PgIdentityRepository) RemoveFriend(ctx context.Context, userId, friendId string) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var n int
	if err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE id IN ($1, $2)", userId, friendId,
	).Scan(&n); err != nil {
		return err
	}
	if n != 2 {
		return sql.ErrNoRows
	}

	if _, err = tx.ExecContext(ctx,
		"DELETE FROM friendships WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)",
		userId, friendId,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgIdentityRepository) AreFriends(ctx context.Context, userId, friendId string) (bool, error) {
	var ok bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)",
		userId, friendId,
	).Scan(&ok)

	return ok, err
}

func (db *PgIdentityRepository) FriendsOf(ctx context.Context, userId string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT friend_id FROM friendships WHERE user_id = $1 ORDER BY friend_id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		friends = append(friends, id)
	}

	return friends, rows.Err()
}

func mapPgError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case uniqueViolation:
		return ErrDuplicateFriend
	case foreignKeyViolation:
		return sql.ErrNoRows
	}

	return err
}
