package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

// ConversationService handles conversations and their memberships.
type ConversationService struct {
	base
}

// NewConversationService creates a new conversation service.
func NewConversationService(d Deps) *ConversationService {
	return &ConversationService{base: newBase(d, "conversations")}
}

// DirectKey is the lookup key of the 1:1 conversation between a and b. The
// lower id is length-prefixed so ids containing ':' cannot collide.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}

// Create creates a conversation and returns its id. A non-group request
// between two identities returns the existing conversation for that pair
// when there is one, including under concurrent creation.
func (s *ConversationService) Create(ctx context.Context, req *model.CreateConversationRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Create")
	defer span.End()

	creator := strings.TrimSpace(req.CreatedBy)
	if creator == "" {
		return "", invalid("creator is required")
	}
	participants := normalizeParticipants(creator, req.Participants)
	span.SetAttributes(attribute.Bool("is_group", req.IsGroup), attribute.Int("participants", len(participants)))

	if !req.IsGroup {
		if len(participants) != 2 {
			return "", invalid("a direct conversation needs exactly two participants")
		}
		return s.createDirect(ctx, req, participants)
	}

	conv := s.newConversation(req, participants, nil)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		return tx.CreateConversation(ctx, conv, s.newMembers(conv.ID, creator, participants))
	})
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	s.created(ctx, conv, "group")
	return conv.ID, nil
}

func (s *ConversationService) createDirect(ctx context.Context, req *model.CreateConversationRequest, participants []string) (string, error) {
	key := DirectKey(participants[0], participants[1])

	var conv *model.Conversation
	created := false
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		existing, err := tx.ConversationByDirectKey(ctx, key)
		if err == nil {
			conv = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		conv = s.newConversation(req, participants, &key)
		created = true
		return tx.CreateConversation(ctx, conv, s.newMembers(conv.ID, req.CreatedBy, participants))
	})

	// A concurrent request inserted the pair first; its row wins.
	if repository.IsDuplicate(err) {
		existing, lookupErr := s.store.ConversationByDirectKey(ctx, key)
		if lookupErr != nil {
			return "", fmt.Errorf("failed to resolve direct conversation: %w", lookupErr)
		}
		return existing.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	if created {
		s.created(ctx, conv, "direct")
	}
	return conv.ID, nil
}

func (s *ConversationService) newConversation(req *model.CreateConversationRequest, participants []string, directKey *string) *model.Conversation {
	now := s.now()
	return &model.Conversation{
		ID:              newID(),
		Name:            req.Name,
		IsGroup:         req.IsGroup,
		DirectKey:       directKey,
		LastMessageTime: now,
		CreatedBy:       strings.TrimSpace(req.CreatedBy),
		ImageURL:        req.ImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
		Participants:    participants,
	}
}

func (s *ConversationService) newMembers(conversationID, creator string, participants []string) []model.ConversationMember {
	now := s.now()
	members := make([]model.ConversationMember, 0, len(participants))
	for _, userID := range participants {
		role := model.RoleMember
		if userID == strings.TrimSpace(creator) {
			role = model.RoleAdmin
		}
		members = append(members, model.ConversationMember{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           role,
			JoinedAt:       now,
		})
	}
	return members
}

func (s *ConversationService) created(ctx context.Context, conv *model.Conversation, kind string) {
	metrics.ConversationsTotal.WithLabelValues(kind).Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("kind", kind),
		zap.Int("participants", len(conv.Participants)),
	)
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventConversationCreated,
		ConversationID: conv.ID,
		UserID:         conv.CreatedBy,
		Data:           conv,
		Recipients:     conv.Participants,
	})
}

// Get returns the conversation with its members and their profiles, or nil
// when it does not exist.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.ConversationDetails, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	members, err := s.store.Members(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	users, err := s.store.UsersByExternalIDs(ctx, conv.Participants)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve members: %w", err)
	}

	details := &model.ConversationDetails{
		Conversation: *conv,
		Members:      make([]model.MemberView, 0, len(members)),
	}
	for _, m := range members {
		details.Members = append(details.Members, model.MemberView{
			ConversationMember: m,
			User:               users[m.UserID],
		})
	}
	return details, nil
}

// List returns the user's conversations, most recently active first, each
// with its last message, unread count and the user's membership.
func (s *ConversationService) List(ctx context.Context, userID string) ([]model.ConversationListItem, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.List")
	defer span.End()

	memberships, err := s.store.MembershipsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.ConversationID)
	}
	convs, err := s.store.ConversationsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	var lastIDs []string
	for _, c := range convs {
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}
	lastMessages, err := s.store.MessagesByIDs(ctx, lastIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load last messages: %w", err)
	}

	items := make([]model.ConversationListItem, 0, len(memberships))
	for i := range memberships {
		m := &memberships[i]
		conv, ok := convs[m.ConversationID]
		if !ok {
			continue
		}
		unread, err := unreadCount(ctx, s.store, m)
		if err != nil {
			return nil, fmt.Errorf("failed to count unread messages: %w", err)
		}

		item := model.ConversationListItem{
			Conversation: *conv,
			UnreadCount:  unread,
			Membership:   *m,
		}
		if conv.LastMessageID != nil {
			item.LastMessage = lastMessages[*conv.LastMessageID]
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastMessageTime.After(items[j].LastMessageTime)
	})
	return items, nil
}

// AddParticipants adds identities to a group. Only admins may add; identities
// that are already members are skipped.
func (s *ConversationService) AddParticipants(ctx context.Context, conversationID string, participants []string, addedBy string) error {
	ctx, span := tracer.Start(ctx, "ConversationService.AddParticipants")
	defer span.End()

	var added, all []string
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		conv, err := conversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.IsGroup {
			return policy("can only add participants to group conversations")
		}
		caller, err := member(ctx, tx, conversationID, addedBy)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() {
			return forbidden("only admins can add participants")
		}

		existing := make(map[string]bool, len(conv.Participants))
		for _, id := range conv.Participants {
			existing[id] = true
		}
		now := s.now()
		var members []model.ConversationMember
		for _, userID := range participants {
			userID = strings.TrimSpace(userID)
			if userID == "" || existing[userID] {
				continue
			}
			existing[userID] = true
			added = append(added, userID)
			members = append(members, model.ConversationMember{
				ConversationID: conversationID,
				UserID:         userID,
				Role:           model.RoleMember,
				JoinedAt:       now,
			})
		}
		if len(members) == 0 {
			return nil
		}
		if err := tx.CreateMembers(ctx, members); err != nil {
			return err
		}
		conv.UpdatedAt = now
		all = append(conv.Participants, added...)
		return tx.SaveConversation(ctx, conv)
	})
	if err != nil {
		return wrap(err, "failed to add participants")
	}

	if len(added) > 0 {
		s.logger.Info("participants added",
			zap.String("conversation_id", conversationID),
			zap.Strings("participants", added),
		)
		s.publish(ctx, &model.ChatEvent{
			Type:           model.EventParticipantsAdded,
			ConversationID: conversationID,
			UserID:         addedBy,
			Data:           map[string]any{"participants": added},
			Recipients:     all,
		})
	}
	return nil
}

// RemoveParticipant removes an identity from a group. Members may always
// remove themselves; removing someone else requires the admin role. When the
// last admin leaves, the earliest-joined remaining member becomes admin.
func (s *ConversationService) RemoveParticipant(ctx context.Context, conversationID, participantID, removedBy string) error {
	ctx, span := tracer.Start(ctx, "ConversationService.RemoveParticipant")
	defer span.End()

	var (
		removed    bool
		promoted   string
		recipients []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		conv, err := conversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.IsGroup {
			return policy("can only remove participants from group conversations")
		}
		if participantID != removedBy {
			caller, err := member(ctx, tx, conversationID, removedBy)
			if err != nil {
				return err
			}
			if !caller.IsAdmin() {
				return forbidden("only admins can remove other participants")
			}
		}

		target, err := member(ctx, tx, conversationID, participantID)
		if err != nil || target == nil {
			return err
		}
		if _, err := tx.DeleteMember(ctx, conversationID, participantID); err != nil {
			return err
		}
		removed = true
		recipients = conv.Participants

		if target.IsAdmin() {
			if promoted, err = promoteIfAdminless(ctx, tx, conversationID); err != nil {
				return err
			}
		}
		conv.UpdatedAt = s.now()
		return tx.SaveConversation(ctx, conv)
	})
	if err != nil {
		return wrap(err, "failed to remove participant")
	}
	if !removed {
		return nil
	}

	s.logger.Info("participant removed",
		zap.String("conversation_id", conversationID),
		zap.String("participant_id", participantID),
		zap.String("removed_by", removedBy),
	)
	data := map[string]any{"participant_id": participantID}
	if promoted != "" {
		data["promoted_admin"] = promoted
	}
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventParticipantRemoved,
		ConversationID: conversationID,
		UserID:         removedBy,
		Data:           data,
		Recipients:     recipients,
	})
	return nil
}

// promoteIfAdminless makes the earliest-joined member admin when no admin
// remains. It returns the promoted user id, if any.
func promoteIfAdminless(ctx context.Context, tx *repository.Store, conversationID string) (string, error) {
	members, err := tx.Members(ctx, conversationID)
	if err != nil || len(members) == 0 {
		return "", err
	}
	for _, m := range members {
		if m.IsAdmin() {
			return "", nil
		}
	}
	heir := members[0]
	heir.Role = model.RoleAdmin
	if err := tx.SaveMember(ctx, &heir); err != nil {
		return "", err
	}
	return heir.UserID, nil
}

// Update changes the name or image of a conversation. Callers must be
// members; group conversations additionally require the admin role.
func (s *ConversationService) Update(ctx context.Context, conversationID, updatedBy string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	var conv *model.Conversation
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := conversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		caller, err := requireMember(ctx, tx, conversationID, updatedBy)
		if err != nil {
			return err
		}
		if c.IsGroup && !caller.IsAdmin() {
			return forbidden("only admins can update group conversations")
		}

		if req.Name != nil {
			c.Name = req.Name
		}
		if req.ImageURL != nil {
			c.ImageURL = req.ImageURL
		}
		c.UpdatedAt = s.now()
		conv = c
		return tx.SaveConversation(ctx, c)
	})
	if err != nil {
		return nil, wrap(err, "failed to update conversation")
	}

	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventConversationUpdated,
		ConversationID: conversationID,
		UserID:         updatedBy,
		Data:           conv,
		Recipients:     conv.Participants,
	})
	return conv, nil
}

// ToggleArchive flips the caller's archive flag and returns the new value.
// It does nothing for non-members.
func (s *ConversationService) ToggleArchive(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.toggle(ctx, conversationID, userID, "archived", func(m *model.ConversationMember) *bool { return &m.IsArchived })
}

// TogglePin flips the caller's pin flag and returns the new value.
func (s *ConversationService) TogglePin(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.toggle(ctx, conversationID, userID, "pinned", func(m *model.ConversationMember) *bool { return &m.IsPinned })
}

// ToggleMute flips the caller's mute flag and returns the new value.
func (s *ConversationService) ToggleMute(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.toggle(ctx, conversationID, userID, "muted", func(m *model.ConversationMember) *bool { return &m.IsMuted })
}

func (s *ConversationService) toggle(ctx context.Context, conversationID, userID, name string, flag func(*model.ConversationMember) *bool) (bool, error) {
	var (
		value   bool
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		m, err := member(ctx, tx, conversationID, userID)
		if err != nil || m == nil {
			return err
		}
		f := flag(m)
		*f = !*f
		value, changed = *f, true
		return tx.SaveMember(ctx, m)
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle %s: %w", name, err)
	}

	if changed {
		s.publish(ctx, &model.ChatEvent{
			Type:           model.EventMembershipUpdated,
			ConversationID: conversationID,
			UserID:         userID,
			Data:           map[string]any{name: value},
			Recipients:     []string{userID},
		})
	}
	return value, nil
}

// Authorize checks that the conversation exists and userID is a member.
func (s *ConversationService) Authorize(ctx context.Context, conversationID, userID string) error {
	_, err := s.Membership(ctx, conversationID, userID)
	return err
}

// Membership returns userID's membership of an existing conversation, or a
// forbidden error when there is none.
func (s *ConversationService) Membership(ctx context.Context, conversationID, userID string) (*model.ConversationMember, error) {
	if _, err := conversation(ctx, s.store, conversationID); err != nil {
		return nil, wrap(err, "failed to get conversation")
	}
	m, err := requireMember(ctx, s.store, conversationID, userID)
	if err != nil {
		return nil, wrap(err, "failed to check membership")
	}
	return m, nil
}

// normalizeParticipants trims and deduplicates ids, with the creator first.
func normalizeParticipants(creator string, participants []string) []string {
	out := []string{creator}
	seen := map[string]bool{creator: true}
	for _, id := range participants {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
