package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatty-app/chat-service/internal/model"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = gorm.ErrRecordNotFound

// Store runs typed queries against the chat schema. A Store obtained from
// Transaction is bound to that transaction.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store on top of db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn inside one database transaction. Every query fn
// issues must go through the Store it receives.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// likePattern builds a case-insensitive substring pattern escaped with '!'.
func likePattern(term string) string {
	return "%" + escapeLike(model.Fold(term)) + "%"
}

// Users

// UserByExternalID returns the profile with the given identity id.
func (s *Store) UserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var u model.User
	if err := s.conn(ctx).Where("external_id = ?", externalID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UsersByExternalIDs resolves a batch of identity ids. Unknown ids are absent
// from the result.
func (s *Store) UsersByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}
	var users []model.User
	if err := s.conn(ctx).Where("external_id IN ?", dedupe(externalIDs)).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].ExternalID] = &users[i]
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	return s.conn(ctx).Create(u).Error
}

func (s *Store) SaveUser(ctx context.Context, u *model.User) error {
	return s.conn(ctx).Save(u).Error
}

// DeleteUserByExternalID removes a profile and reports whether it existed.
func (s *Store) DeleteUserByExternalID(ctx context.Context, externalID string) (bool, error) {
	res := s.conn(ctx).Where("external_id = ?", externalID).Delete(&model.User{})
	return res.RowsAffected > 0, res.Error
}

// SearchUsers matches the query against the full name, email and username,
// ignoring case.
func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	pattern := likePattern(query)
	var users []model.User
	err := s.conn(ctx).
		Where("search_name LIKE ? ESCAPE '!'", pattern).
		Or("search_email LIKE ? ESCAPE '!'", pattern).
		Or("search_username LIKE ? ESCAPE '!'", pattern).
		Order("email").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// OnlineUsers returns users flagged online and seen after since.
func (s *Store) OnlineUsers(ctx context.Context, since time.Time) ([]model.User, error) {
	var users []model.User
	err := s.conn(ctx).
		Where("is_online = ? AND last_seen > ?", true, since).
		Order("last_seen DESC").
		Find(&users).Error
	return users, err
}

// Conversations

// ConversationByID returns the conversation with its participants filled in.
func (s *Store) ConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.conn(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	if err := s.fillParticipants(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationByDirectKey finds the 1:1 conversation for a participant pair.
func (s *Store) ConversationByDirectKey(ctx context.Context, key string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.conn(ctx).Where("direct_key = ?", key).First(&c).Error; err != nil {
		return nil, err
	}
	if err := s.fillParticipants(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationsByIDs loads a batch of conversations keyed by id.
func (s *Store) ConversationsByIDs(ctx context.Context, ids []string) (map[string]*model.Conversation, error) {
	out := make(map[string]*model.Conversation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var convs []model.Conversation
	if err := s.conn(ctx).Where("id IN ?", dedupe(ids)).Find(&convs).Error; err != nil {
		return nil, err
	}
	parts, err := s.Participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].Participants = nonNil(parts[convs[i].ID])
		out[convs[i].ID] = &convs[i]
	}
	return out, nil
}

// CreateConversation inserts a conversation and its initial memberships.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation, members []model.ConversationMember) error {
	if err := s.conn(ctx).Create(c).Error; err != nil {
		return err
	}
	if len(members) > 0 {
		if err := s.conn(ctx).Create(&members).Error; err != nil {
			return err
		}
	}
	c.Participants = make([]string, 0, len(members))
	for _, m := range members {
		c.Participants = append(c.Participants, m.UserID)
	}
	return nil
}

func (s *Store) SaveConversation(ctx context.Context, c *model.Conversation) error {
	return s.conn(ctx).Save(c).Error
}

// TouchLastMessage updates the cached last message of a conversation.
func (s *Store) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	return s.conn(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"last_message_id":   messageID,
			"last_message_time": at,
			"updated_at":        at,
		}).Error
}

func (s *Store) fillParticipants(ctx context.Context, c *model.Conversation) error {
	parts, err := s.Participants(ctx, []string{c.ID})
	if err != nil {
		return err
	}
	c.Participants = nonNil(parts[c.ID])
	return nil
}

// Members

// Member returns the membership of userID in a conversation.
func (s *Store) Member(ctx context.Context, conversationID, userID string) (*model.ConversationMember, error) {
	var m model.ConversationMember
	err := s.conn(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Members lists memberships of a conversation in join order.
func (s *Store) Members(ctx context.Context, conversationID string) ([]model.ConversationMember, error) {
	var members []model.ConversationMember
	err := s.conn(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at, id").
		Find(&members).Error
	return members, err
}

// MembershipsForUser lists every membership held by userID.
func (s *Store) MembershipsForUser(ctx context.Context, userID string) ([]model.ConversationMember, error) {
	var members []model.ConversationMember
	err := s.conn(ctx).Where("user_id = ?", userID).Find(&members).Error
	return members, err
}

func (s *Store) CreateMembers(ctx context.Context, members []model.ConversationMember) error {
	if len(members) == 0 {
		return nil
	}
	return s.conn(ctx).Create(&members).Error
}

// DeleteMember removes a membership and reports whether one existed.
func (s *Store) DeleteMember(ctx context.Context, conversationID, userID string) (bool, error) {
	res := s.conn(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&model.ConversationMember{})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) SaveMember(ctx context.Context, m *model.ConversationMember) error {
	return s.conn(ctx).Save(m).Error
}

// Participants maps each conversation id to its member ids in join order.
func (s *Store) Participants(ctx context.Context, conversationIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	var members []model.ConversationMember
	err := s.conn(ctx).
		Select("conversation_id", "user_id").
		Where("conversation_id IN ?", dedupe(conversationIDs)).
		Order("joined_at, id").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		out[m.ConversationID] = append(out[m.ConversationID], m.UserID)
	}
	return out, nil
}

// Messages

func (s *Store) MessageByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := s.conn(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MessagesByIDs loads a batch of messages keyed by id.
func (s *Store) MessagesByIDs(ctx context.Context, ids []string) (map[string]*model.Message, error) {
	out := make(map[string]*model.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var msgs []model.Message
	if err := s.conn(ctx).Where("id IN ?", dedupe(ids)).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i := range msgs {
		out[msgs[i].ID] = &msgs[i]
	}
	return out, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	return s.conn(ctx).Create(m).Error
}

func (s *Store) SaveMessage(ctx context.Context, m *model.Message) error {
	return s.conn(ctx).Save(m).Error
}

// MessagesBefore returns up to limit messages of a conversation, newest
// first, strictly older than before when it is set.
func (s *Store) MessagesBefore(ctx context.Context, conversationID string, before *int64, limit int) ([]model.Message, error) {
	q := s.conn(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("creation_time < ?", *before)
	}
	var msgs []model.Message
	err := q.Order("creation_time DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

// CountMessagesAfter counts messages strictly newer than after, or all
// messages of the conversation when after is nil.
func (s *Store) CountMessagesAfter(ctx context.Context, conversationID string, after *int64) (int64, error) {
	q := s.conn(ctx).Model(&model.Message{}).Where("conversation_id = ?", conversationID)
	if after != nil {
		q = q.Where("creation_time > ?", *after)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// SearchMessages finds live messages whose content contains term,
// ignoring case, newest first.
func (s *Store) SearchMessages(ctx context.Context, conversationID, term string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := s.conn(ctx).
		Where("conversation_id = ? AND deleted_at IS NULL", conversationID).
		Where("search_text LIKE ? ESCAPE '!'", likePattern(term)).
		Order("creation_time DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// RecentMessages returns the newest live messages of a conversation, newest
// first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := s.conn(ctx).
		Where("conversation_id = ? AND deleted_at IS NULL", conversationID).
		Order("creation_time DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// Reactions

// UpsertReaction stores the user's reaction, replacing any previous emoji.
func (s *Store) UpsertReaction(ctx context.Context, r *model.MessageReaction) error {
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(r).Error
}

// DeleteReaction removes the user's reaction and reports whether one existed.
func (s *Store) DeleteReaction(ctx context.Context, messageID, userID string) (bool, error) {
	res := s.conn(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&model.MessageReaction{})
	return res.RowsAffected > 0, res.Error
}

// ReactionsForMessages groups reactions by message id in creation order.
func (s *Store) ReactionsForMessages(ctx context.Context, messageIDs []string) (map[string][]model.MessageReaction, error) {
	out := make(map[string][]model.MessageReaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var reactions []model.MessageReaction
	err := s.conn(ctx).
		Where("message_id IN ?", dedupe(messageIDs)).
		Order("created_at, id").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	for _, r := range reactions {
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
