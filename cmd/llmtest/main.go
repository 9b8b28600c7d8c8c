package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulsekit/pulsekit/internal/conversation"
)

// llmtest sends a short canned feedback exchange to the configured
// completion providers so credentials and model IDs can be verified
// without running the full worker.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages := []conversation.ChatMessage{
		{Role: conversation.ChatRoleAssistant, Content: "Hi Alex! Quick check-in about working with Dana this sprint. How has the collaboration been going?"},
		{Role: conversation.ChatRoleUser, Content: "Pretty good overall. Dana unblocked me twice on the deploy pipeline, though reviews sometimes sit for a day."},
	}

	req := conversation.LLMRequest{
		System:      []string{"You are a friendly workplace feedback assistant. Ask one short follow-up question."},
		Messages:    messages,
		MaxTokens:   200,
		Temperature: 0.7,
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		fmt.Println("[gemini] skipped (GEMINI_API_KEY not set)")
	} else {
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			model = "gemini-2.5-flash"
		}
		fmt.Printf("[gemini] completing with %s...\n", model)
		client, err := conversation.NewGeminiLLMClient(ctx, geminiKey, model)
		if err != nil {
			fmt.Printf("[gemini] client error: %v\n", err)
		} else {
			start := time.Now()
			resp, err := client.Complete(ctx, req)
			if err != nil {
				fmt.Printf("[gemini] completion error: %v\n", err)
			} else {
				fmt.Printf("[gemini] ok in %v\n", time.Since(start).Round(time.Millisecond))
				fmt.Printf("[gemini] %s\n", resp.Text)
				fmt.Printf("[gemini] tokens in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
			}
		}
	}

	// Bedrock needs the full AWS credential chain, so it is exercised
	// through the worker's fallback path rather than here.
	if os.Getenv("BEDROCK_MODEL_ID") != "" {
		fmt.Println("[bedrock] BEDROCK_MODEL_ID is set; verify via the conversation worker logs")
	}
}
