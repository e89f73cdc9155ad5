// Package runner drives one user turn through the model backend and the
// text-embedded tool protocol.
//
// Flow:
//
//	user(text) -> assistant(reply with <mcp:tool> blocks)
//	           -> tools executed in order, <mcp:result> spliced after each call
//	           -> assistant(transcript) + user(follow-up) -> assistant(final)
//
// Invariants:
//   - A backend failure aborts the turn; only the user message has been added.
//   - Tool failures never abort a turn; they are reported in the transcript.
//   - The composed system prompt is sent, never stored.
package runner
