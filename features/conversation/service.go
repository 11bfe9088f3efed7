package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"notia/internal/adapter/openai"
)

// historyLimit bounds how many prior turns feed back into the model.
const historyLimit = 10

const titleMaxRunes = 80

type Repository interface {
	Create(ctx context.Context, title string) (string, error)
	List(ctx context.Context) ([]Conversation, error)
	Exists(ctx context.Context, id string) (bool, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	AppendMessage(ctx context.Context, conversationID, role, content string, sources []byte) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// History returns the most recent turns of a conversation in model format,
// oldest first. An unknown or empty conversation ID yields no history.
func (s *Service) History(ctx context.Context, conversationID string) ([]openai.Message, error) {
	if conversationID == "" {
		return nil, nil
	}
	messages, err := s.repo.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}

	history := make([]openai.Message, 0, len(messages))
	for _, m := range messages {
		history = append(history, openai.Message{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// Record stores one question and its answer, creating the conversation on
// first use. The question doubles as the conversation title, truncated.
func (s *Service) Record(ctx context.Context, conversationID, question, answer string, sources interface{}) (string, error) {
	if conversationID == "" {
		id, err := s.repo.Create(ctx, truncateTitle(question))
		if err != nil {
			return "", fmt.Errorf("creating conversation: %w", err)
		}
		conversationID = id
	} else if ok, err := s.repo.Exists(ctx, conversationID); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("conversation %s not found", conversationID)
	}

	if err := s.repo.AppendMessage(ctx, conversationID, "user", question, nil); err != nil {
		return "", fmt.Errorf("storing question: %w", err)
	}

	var sourcesJSON []byte
	if sources != nil {
		encoded, err := json.Marshal(sources)
		if err != nil {
			return "", fmt.Errorf("encoding sources: %w", err)
		}
		sourcesJSON = encoded
	}
	if err := s.repo.AppendMessage(ctx, conversationID, "assistant", answer, sourcesJSON); err != nil {
		return "", fmt.Errorf("storing answer: %w", err)
	}
	return conversationID, nil
}

func (s *Service) List(ctx context.Context) ([]Conversation, error) {
	return s.repo.List(ctx)
}

func (s *Service) Messages(ctx context.Context, conversationID string) ([]Message, bool, error) {
	ok, err := s.repo.Exists(ctx, conversationID)
	if err != nil || !ok {
		return nil, false, err
	}
	messages, err := s.repo.Messages(ctx, conversationID)
	return messages, true, err
}

func (s *Service) Delete(ctx context.Context, conversationID string) error {
	return s.repo.Delete(ctx, conversationID)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= titleMaxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:titleMaxRunes])
}
