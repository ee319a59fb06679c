// Package llm wraps the text-in, text-out inference capability used for
// classification, summarization and reply drafting.
//
// Callers build prompts with the Prompt helpers and parse replies with the
// Parse helpers; nothing here assumes the model is deterministic. Gemini
// talks to the Google Gen AI API. Local answers the same prompts with fixed
// rules and is used when no API key is configured and in tests.
package llm
