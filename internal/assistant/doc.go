// Package assistant orchestrates the site's chat assistants.
//
// Each variant (chat, greeter, diagnostic) is a Pipeline built from a
// Config. A request flows through three stages:
//
//  1. Guardrail: conversations that are missing or longer than the
//     variant's turn cap get the static FallbackReply and never reach the
//     provider. Provider failures, timeouts and panics become ErrorReply.
//  2. Router: history is translated to provider roles, the completion
//     provider is called once, and heuristic variants match the latest
//     user message against ordered keyword rules for a redirect.
//  3. Extractor: directive tags embedded in the model reply are parsed
//     and removed from the visible text. Route tags become a link and an
//     upsell follow-up. Upgrade tags are recorded as events.
//
// The tag grammar:
//
//	[ROUTE year=2018 make=honda model=civic]
//	[UPGRADE_INTENT reason=pdf_export]
//
// Malformed tags are not directives and are left in place.
//
// Events fire only on a conversation's first turn or when upgrade intent
// is detected, and are delivered off the request path to an EventSink.
package assistant
