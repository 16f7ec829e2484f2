// Package storage is the document side of the remote data service, kept in PostgreSQL.
package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"greensitter/internal/models"
	"greensitter/internal/storage/zapadapter"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotExist        = errors.New("user does not exist")
	ErrChatRoomExists      = errors.New("chat room already exists")
	ErrChatRoomBadUsers    = errors.New("bad chat room participants")
	ErrChatRoomNotExist    = errors.New("chat room does not exist")
	ErrMessageExists       = errors.New("message already exists")
	ErrMessageBadChatRoom  = errors.New("bad chat room id")
	ErrMessageBadSender    = errors.New("bad sender id")
	ErrMessageBadReceiver  = errors.New("bad receiver id")
	ErrPostNotExist        = errors.New("post does not exist")
	ErrPostBadUser         = errors.New("bad post author id")
	ErrMalformedJSONColumn = errors.New("malformed json column")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct.
// dsn is usually built with Config.DSN.
func New(ctx context.Context, logger *zap.SugaredLogger, dsn string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, o := range opts {
		o.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Migrate creates missing tables
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close closes all pool connections
func (s *Store) Close() {
	s.db.Close()
}

func pgErrorCode(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// jsonParam encodes v for a jsonb column, nil pointers become NULL
func jsonParam(v interface{}) (pgtype.JSONB, error) {
	switch t := v.(type) {
	case *models.Location:
		if t == nil {
			return pgtype.JSONB{Status: pgtype.Null}, nil
		}
	case *models.Plan:
		if t == nil {
			return pgtype.JSONB{Status: pgtype.Null}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{}, err
	}
	return pgtype.JSONB{Bytes: b, Status: pgtype.Present}, nil
}

// assignJSON decodes a scanned jsonb column into dst and reports whether it was NULL
func assignJSON(src pgtype.JSONB, dst interface{}) (bool, error) {
	if src.Status != pgtype.Present {
		return false, nil
	}
	if err := src.AssignTo(dst); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedJSONColumn, err)
	}
	return true, nil
}

// CreateUser stores a user signing in for the first time
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	s.logger.Debugf("Creating user (id: %s)", u.ID)

	location, err := jsonParam(u.Location)
	if err != nil {
		return err
	}

	now := time.Now()
	if u.CreateDate.IsZero() {
		u.CreateDate = now
	}
	if u.UpdateDate.IsZero() {
		u.UpdateDate = now
	}

	sql := `insert into users (id, enabled, created_at, updated_at, profile_image, nickname, location,
                               platform, level_point, about_me, chat_notification)
            values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.db.Exec(ctx, sql, u.ID, u.Enabled, u.CreateDate, u.UpdateDate, u.ProfileImage, u.Nickname,
		location, u.Platform, u.LevelPoint, u.AboutMe, u.ChatNotification)
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrUserExists
		}
		return err
	}

	s.logger.Debugf("Created user (id: %s)", u.ID)

	return nil
}

// FetchUser returns the profile of a user
func (s *Store) FetchUser(ctx context.Context, id string) (models.User, error) {
	s.logger.Debugf("Retrieving user (id: %s)", id)

	var (
		u        models.User
		location pgtype.JSONB
	)
	sql := `select id, enabled, created_at, updated_at, profile_image, nickname, location,
                   platform, level_point, about_me, chat_notification
              from users
             where id = $1`
	err := s.db.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Enabled, &u.CreateDate, &u.UpdateDate, &u.ProfileImage,
		&u.Nickname, &location, &u.Platform, &u.LevelPoint, &u.AboutMe, &u.ChatNotification)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotExist
		}
		return models.User{}, err
	}

	if _, err := assignJSON(location, &u.Location); err != nil {
		return models.User{}, err
	}

	return u, nil
}

// CreateChatRoom stores a new room between a post owner and an interested user
func (s *Store) CreateChatRoom(ctx context.Context, room models.ChatRoom) error {
	s.logger.Debugf("Creating chat room (id: %s) for users (%s, %s)", room.ID, room.UserID, room.PostUserID)

	var postID *string
	if room.PostID != "" {
		postID = &room.PostID
	}

	now := time.Now()
	sql := `insert into chat_rooms (id, enabled, created_at, updated_at, user_id, post_user_id, post_id,
                                    user_notification, post_user_notification)
            values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.Exec(ctx, sql, room.ID, room.Enabled, now, now, room.UserID, room.PostUserID, postID,
		room.UserNotification, room.PostUserNotification)
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrChatRoomExists
			case pgerrcode.ForeignKeyViolation:
				return ErrChatRoomBadUsers
			}
		}
		return err
	}

	return nil
}

// FetchChatRooms returns rooms the user takes part in and has not deleted, most recently active first
func (s *Store) FetchChatRooms(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	s.logger.Debugf("Retrieving chat rooms for user (id: %s)", userID)

	// check if user exists
	var i int8
	sql := "select 1 from users where id = $1"
	err := s.db.QueryRow(ctx, sql, userID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotExist
		}
		return nil, err
	}

	sql = `select id, enabled, created_at, updated_at, user_id, post_user_id, coalesce(post_id, ''),
                  user_notification, post_user_notification
             from chat_rooms
            where (user_id = $1 and not user_deleted)
               or (post_user_id = $1 and not post_user_deleted)
            order by updated_at desc`

	rows, err := s.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var rooms []models.ChatRoom
	for rows.Next() {
		var r models.ChatRoom
		err = rows.Scan(&r.ID, &r.Enabled, &r.CreateDate, &r.UpdateDate, &r.UserID, &r.PostUserID, &r.PostID,
			&r.UserNotification, &r.PostUserNotification)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d chat rooms", len(rooms))

	return rooms, nil
}

// FetchMessages returns messages of a room, oldest first
func (s *Store) FetchMessages(ctx context.Context, chatRoomID string) ([]models.Message, error) {
	s.logger.Debugf("Retrieving messages for chat room (id: %s)", chatRoomID)

	// check if chat room exists
	var i int8
	sql := "select 1 from chat_rooms where id = $1"
	err := s.db.QueryRow(ctx, sql, chatRoomID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatRoomNotExist
		}
		return nil, err
	}

	sql = `select id, enabled, created_at, updated_at, sender_user_id, receiver_user_id, is_read,
                  message_type, text, image, plan
             from messages
            where chat_room_id = $1
            order by created_at asc`

	rows, err := s.db.Query(ctx, sql, chatRoomID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			m           models.Message
			messageType string
			plan        pgtype.JSONB
		)
		err = rows.Scan(&m.ID, &m.Enabled, &m.CreateDate, &m.UpdateDate, &m.SenderUserID, &m.ReceiverUserID,
			&m.IsRead, &messageType, &m.Text, &m.Image, &plan)
		if err != nil {
			return nil, err
		}

		if m.MessageType, err = models.ParseMessageType(messageType); err != nil {
			return nil, err
		}

		var p models.Plan
		ok, err := assignJSON(plan, &p)
		if err != nil {
			return nil, err
		}
		if ok {
			m.Plan = &p
		}

		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// SaveMessage stores m in a room and marks the room as active
func (s *Store) SaveMessage(ctx context.Context, chatRoomID string, m models.Message) error {
	s.logger.Debugf("Saving %s message (id: %s) from user (id: %s) in chat room (id: %s)",
		m.MessageType, m.ID, m.SenderUserID, chatRoomID)

	if err := m.Validate(); err != nil {
		return err
	}

	plan, err := jsonParam(m.Plan)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	// error handling can be omitted for rollback according docs
	defer tx.Rollback(context.Background())

	sql := `insert into messages (id, chat_room_id, enabled, created_at, updated_at, sender_user_id,
                                  receiver_user_id, is_read, message_type, text, image, plan)
            values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = tx.Exec(ctx, sql, m.ID, chatRoomID, m.Enabled, m.CreateDate, m.UpdateDate, m.SenderUserID,
		m.ReceiverUserID, m.IsRead, string(m.MessageType), m.Text, m.Image, plan)
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrMessageExists
			case pgerrcode.ForeignKeyViolation:
				switch pgErr.ConstraintName {
				case "messages_chat_room_id_fkey":
					return ErrMessageBadChatRoom
				case "messages_sender_user_id_fkey":
					return ErrMessageBadSender
				case "messages_receiver_user_id_fkey":
					return ErrMessageBadReceiver
				}
			}
		}
		return err
	}

	_, err = tx.Exec(ctx, "update chat_rooms set updated_at = $2 where id = $1", chatRoomID, m.CreateDate)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeleteChatRoom hides the room from userID. The room and its messages are removed
// once both participants deleted it.
func (s *Store) DeleteChatRoom(ctx context.Context, id, userID string) error {
	s.logger.Debugf("Deleting chat room (id: %s) for user (id: %s)", id, userID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	sql := `update chat_rooms
               set user_deleted = user_deleted or user_id = $2,
                   post_user_deleted = post_user_deleted or post_user_id = $2,
                   updated_at = $3
             where id = $1
               and (user_id = $2 or post_user_id = $2)`
	tag, err := tx.Exec(ctx, sql, id, userID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChatRoomNotExist
	}

	tag, err = tx.Exec(ctx, "delete from chat_rooms where id = $1 and user_deleted and post_user_deleted", id)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if tag.RowsAffected() > 0 {
		s.logger.Debugf("Chat room (id: %s) removed, no participant left", id)
	}

	return nil
}

// UpdateNotificationSetting stores notification flags of both participants
func (s *Store) UpdateNotificationSetting(ctx context.Context, chatRoomID string, userNotification, postUserNotification bool) error {
	s.logger.Debugf("Updating notification of chat room (id: %s)", chatRoomID)

	sql := `update chat_rooms
               set user_notification = $2, post_user_notification = $3, updated_at = $4
             where id = $1`
	tag, err := s.db.Exec(ctx, sql, chatRoomID, userNotification, postUserNotification, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChatRoomNotExist
	}

	return nil
}

// SavePost inserts or replaces a post. Image paths are rewritten with a bulk copy in the same transaction.
func (s *Store) SavePost(ctx context.Context, p models.Post) error {
	s.logger.Debugf("Saving post (id: %s) with %d images", p.ID, len(p.PostImages))

	if err := p.Validate(); err != nil {
		return err
	}

	userLocation, err := jsonParam(p.UserLocation)
	if err != nil {
		return err
	}
	location, err := jsonParam(p.Location)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	sql := `insert into posts (id, enabled, created_at, updated_at, user_id, profile_image, nickname,
                               user_location, user_notification, post_type, title, body, status, location)
            values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
            on conflict (id) do update
               set enabled = excluded.enabled,
                   updated_at = excluded.updated_at,
                   profile_image = excluded.profile_image,
                   nickname = excluded.nickname,
                   user_location = excluded.user_location,
                   user_notification = excluded.user_notification,
                   post_type = excluded.post_type,
                   title = excluded.title,
                   body = excluded.body,
                   status = excluded.status,
                   location = excluded.location`
	_, err = tx.Exec(ctx, sql, p.ID, p.Enabled, p.CreateDate, p.UpdateDate, p.UserID, p.ProfileImage, p.Nickname,
		userLocation, p.UserNotification, string(p.PostType), p.PostTitle, p.PostBody, string(p.PostStatus), location)
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrPostBadUser
		}
		return err
	}

	if _, err = tx.Exec(ctx, "delete from post_images where post_id = $1", p.ID); err != nil {
		return err
	}

	if len(p.PostImages) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"post_images"}, []string{"post_id", "position", "path"},
			copyFromBulk(postImageRows(p.ID, p.PostImages)))
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

const selectPost = `select id, enabled, created_at, updated_at, user_id, profile_image, nickname, user_location,
                           user_notification, post_type, title, body, status, location,
                           (select array_agg(path order by position) from post_images where post_id = posts.id)
                      from posts`

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		p                      models.Post
		postType, status       string
		userLocation, location pgtype.JSONB
	)
	err := row.Scan(&p.ID, &p.Enabled, &p.CreateDate, &p.UpdateDate, &p.UserID, &p.ProfileImage, &p.Nickname,
		&userLocation, &p.UserNotification, &postType, &p.PostTitle, &p.PostBody, &status, &location, &p.PostImages)
	if err != nil {
		return models.Post{}, err
	}

	if p.PostType, err = models.ParsePostType(postType); err != nil {
		return models.Post{}, err
	}
	if p.PostStatus, err = models.ParsePostStatus(status); err != nil {
		return models.Post{}, err
	}

	if _, err = assignJSON(userLocation, &p.UserLocation); err != nil {
		return models.Post{}, err
	}

	var loc models.Location
	ok, err := assignJSON(location, &loc)
	if err != nil {
		return models.Post{}, err
	}
	if ok {
		p.Location = &loc
	}

	return p, nil
}

// FetchPost returns a single post with its images in order
func (s *Store) FetchPost(ctx context.Context, id string) (models.Post, error) {
	s.logger.Debugf("Retrieving post (id: %s)", id)

	p, err := scanPost(s.db.QueryRow(ctx, selectPost+" where id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrPostNotExist
		}
		return models.Post{}, err
	}

	return p, nil
}

// FetchPosts returns enabled posts, newest first
func (s *Store) FetchPosts(ctx context.Context) ([]models.Post, error) {
	s.logger.Debug("Retrieving posts")

	rows, err := s.db.Query(ctx, selectPost+" where enabled order by created_at desc")
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d posts", len(posts))

	return posts, nil
}
