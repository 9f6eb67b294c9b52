// Package completion wraps the generative-text providers assistd can talk to.
//
// Every provider implements Completer: a system prompt, prior history and
// the latest user message go in, reply text comes out. Providers:
//
//   - gemini: Google Gemini via google.golang.org/genai
//   - openai: any OpenAI-compatible endpoint via langchaingo
//   - anthropic: the Messages API over plain HTTP with retries
//   - disabled: always fails with ErrUnavailable
//
// NewFromConfig builds the configured provider and wraps it with a token
// bucket when a rate limit is set. Callers own timeouts through ctx.
package completion
