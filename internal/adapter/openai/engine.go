package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"notia/internal/ranking"
	"notia/internal/retry"
	"notia/internal/text"
)

const (
	answerModel  = goopenai.GPT4
	maxChunks    = 5
	maxChars     = 4000
	temperature  = 0.7
	maxTokens    = 800
	retryBudget  = 2
	retryInitial = 2 * time.Second
)

// Message is one prior conversation turn passed back into the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine answers questions over ranked search results using an OpenAI chat
// model. Answers come back as HTML fragments in the language of the query.
type Engine struct {
	client   *goopenai.Client
	detector text.LanguageDetector
}

func NewEngine(apiKey string, detector text.LanguageDetector) *Engine {
	return &Engine{client: goopenai.NewClient(apiKey), detector: detector}
}

// GenerateAnswer produces an answer grounded in the search results, carrying
// over prior user and assistant turns. The model is prompted in the query's
// language so English, Russian, and Ukrainian questions get native answers.
func (e *Engine) GenerateAnswer(ctx context.Context, query string, results ranking.SearchResponse, history []Message) (string, error) {
	lang := e.queryLanguage(query)
	contextText := BuildContext(results, maxChunks, maxChars)

	messages := []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt(lang)},
	}
	for _, msg := range history {
		if msg.Role != goopenai.ChatMessageRoleUser && msg.Role != goopenai.ChatMessageRoleAssistant {
			continue
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: userPrompt(lang, query, contextText),
	})

	var answer string
	err := retry.Do(ctx, retryBudget, retryInitial, func() error {
		resp, err := e.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model:       answerModel,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("model returned no choices")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return answer, nil
}

// BuildContext assembles the prompt context from the top search results,
// labeling each snippet with its source page and relevance. Output is capped
// at maxChunks snippets and maxChars characters.
func BuildContext(results ranking.SearchResponse, maxChunks, maxChars int) string {
	if len(results.Results) == 0 {
		return "No relevant context found."
	}

	var parts []string
	total := 0
	for i, r := range results.Results {
		if i >= maxChunks {
			break
		}
		title := r.Title
		if title == "" {
			title = "Unknown source"
		}
		chunk := fmt.Sprintf("[Source: %s | Relevance: %.3f]\n%s", title, r.Relevance, r.ContentSnippet)

		if total+len(chunk) > maxChars {
			remaining := maxChars - total
			if remaining > 100 {
				parts = append(parts, chunk[:remaining]+"...")
			}
			break
		}
		parts = append(parts, chunk)
		total += len(chunk)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) queryLanguage(query string) string {
	if e.detector == nil {
		return "en"
	}
	switch lang := e.detector.Detect(query); lang {
	case "ru", "uk":
		return lang
	default:
		return "en"
	}
}

func systemPrompt(lang string) string {
	switch lang {
	case "ru":
		return "Ты помощник по управлению проектами. Структурируй ответ с использованием HTML5 семантических тегов (<div>, <section>, <h3>-<h6>, <p>, <span>, <ul>/<ol>, <li>, <blockquote>, <strong> и др.). Никогда НЕ начинай ответ с заголовка. Начинай сразу с содержимого. Используй предоставленный контекст для точных ответов. Если в контексте есть релевантная информация, дай полный исчерпывающий ответ. Если в контексте нет точной информации, скажи об этом, но попытайся дать полезные рекомендации."
	case "uk":
		return "Ти помічник з управління проектами. Структуруй відповідь із використанням HTML5 семантичних тегів (<div>, <section>, <h3>-<h6>, <p>, <span>, <ul>/<ol>, <li>, <blockquote>, <strong> тощо). Ніколи НЕ починай відповідь із заголовка. Починай одразу зі змісту. Використовуй наданий контекст для точних відповідей. Якщо в контексті є релевантна інформація, надай повну вичерпну відповідь. Якщо в контексті немає точної інформації, скажи про це, але намагайся надати корисні рекомендації."
	default:
		return "You are a helpful Project Management Assistant. Structure response using varied HTML5 semantic tags (<div>, <section>, <h3>-<h6>, <p>, <span>, <ul>/<ol>, <li>, <blockquote>, <strong>, etc). Never start a response with a title. Start directly with content. Use the provided context to answer questions accurately. If the context doesn't contain the exact information, say so but try to provide helpful guidance."
	}
}

func userPrompt(lang, query, contextText string) string {
	switch lang {
	case "ru":
		return fmt.Sprintf("Контекстная информация:\n%s\nВопрос: %s\nПожалуйста, дай полезный ответ в формате HTML на основе контекста выше.", contextText, query)
	case "uk":
		return fmt.Sprintf("Контекстна інформація:\n%s\nПитання: %s\nБудь ласка, надай корисну відповідь у форматі HTML на основі контексту вище.", contextText, query)
	default:
		return fmt.Sprintf("Context information:\n%s\nQuestion: %s\nPlease provide a helpful answer in HTML format based on the context above.", contextText, query)
	}
}
